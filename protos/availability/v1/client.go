package availabilityv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// SlotsRequest names the duration directly or through ServiceID.
type SlotsRequest struct {
	BusinessID      string
	Date            string
	DurationMinutes int
	ServiceID       string
}

type SlotsReply struct {
	BusinessID      string
	Date            string
	DurationMinutes int
	Status          string
	Slots           []string
}

type CheckReply struct {
	Available bool
	Status    string
}

func (r SlotsRequest) fields() map[string]any {
	m := map[string]any{
		"business_id": r.BusinessID,
		"date":        r.Date,
	}
	if r.DurationMinutes > 0 {
		m["duration_minutes"] = r.DurationMinutes
	}
	if r.ServiceID != "" {
		m["service_id"] = r.ServiceID
	}
	return m
}

type AvailabilityServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewAvailabilityServiceClient(cc grpc.ClientConnInterface) *AvailabilityServiceClient {
	return &AvailabilityServiceClient{cc: cc}
}

func (c *AvailabilityServiceClient) GetAvailableTimeSlots(ctx context.Context, req SlotsRequest, opts ...grpc.CallOption) (SlotsReply, error) {
	in, err := structpb.NewStruct(req.fields())
	if err != nil {
		return SlotsReply{}, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodGetAvailableTimeSlots, in, out, opts...); err != nil {
		return SlotsReply{}, err
	}
	f := out.GetFields()
	reply := SlotsReply{
		BusinessID:      f["business_id"].GetStringValue(),
		Date:            f["date"].GetStringValue(),
		DurationMinutes: int(f["duration_minutes"].GetNumberValue()),
		Status:          f["status"].GetStringValue(),
		Slots:           []string{},
	}
	for _, v := range f["slots"].GetListValue().GetValues() {
		reply.Slots = append(reply.Slots, v.GetStringValue())
	}
	return reply, nil
}

// CheckAvailability asks whether a booking may start at the "HH:MM" time at.
func (c *AvailabilityServiceClient) CheckAvailability(ctx context.Context, req SlotsRequest, at string, opts ...grpc.CallOption) (CheckReply, error) {
	fields := req.fields()
	fields["time"] = at
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return CheckReply{}, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodCheckAvailability, in, out, opts...); err != nil {
		return CheckReply{}, err
	}
	f := out.GetFields()
	return CheckReply{
		Available: f["available"].GetBoolValue(),
		Status:    f["status"].GetStringValue(),
	}, nil
}

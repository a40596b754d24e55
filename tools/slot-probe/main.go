package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/slotwise/libs/config"
	"github.com/md-rashed-zaman/slotwise/libs/grpcx"
	"github.com/md-rashed-zaman/slotwise/libs/kafkax"
	availabilityv1 "github.com/md-rashed-zaman/slotwise/protos/availability/v1"
	"github.com/segmentio/kafka-go"
)

const catalogTopic = "catalog.service.upserted.v1"

func main() {
	var (
		addr     = flag.String("addr", config.String("AVAILABILITY_GRPC_ADDR", "localhost:9095"), "availability-service gRPC address")
		business = flag.String("business-id", config.String("BUSINESS_ID", ""), "business id")
		date     = flag.String("date", time.Now().UTC().Format("2006-01-02"), "date (YYYY-MM-DD)")
		duration = flag.Int("duration", 0, "duration in minutes")
		service  = flag.String("service-id", "", "catalog service id; used when -duration is 0")
		at       = flag.String("time", "", "check one start time (HH:MM) instead of listing slots")
		brokers  = flag.String("brokers", config.String("KAFKA_BROKERS", ""), "kafka brokers for -publish-service")
		publish  = flag.Bool("publish-service", false, "publish a catalog upsert for -service-id/-duration and exit")
		timeout  = flag.Duration("timeout", 5*time.Second, "request timeout")
	)
	flag.Parse()

	if strings.TrimSpace(*business) == "" {
		fatal("BUSINESS_ID is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if *publish {
		if err := publishService(ctx, *brokers, *business, *service, *duration); err != nil {
			fatal(err.Error())
		}
		fmt.Printf("published %s business_id=%s service_id=%s duration=%d\n", catalogTopic, *business, *service, *duration)
		return
	}

	conn, err := grpcx.Dial(*addr, grpcx.DialOptions{})
	if err != nil {
		fatal(err.Error())
	}
	defer conn.Close()
	client := availabilityv1.NewAvailabilityServiceClient(conn)

	req := availabilityv1.SlotsRequest{
		BusinessID:      *business,
		Date:            *date,
		DurationMinutes: *duration,
		ServiceID:       *service,
	}

	if strings.TrimSpace(*at) != "" {
		reply, err := client.CheckAvailability(ctx, req, *at)
		if err != nil {
			fatal(err.Error())
		}
		fmt.Printf("date=%s time=%s available=%t status=%s\n", *date, *at, reply.Available, reply.Status)
		return
	}

	reply, err := client.GetAvailableTimeSlots(ctx, req)
	if err != nil {
		fatal(err.Error())
	}
	fmt.Printf("date=%s duration=%d status=%s slots=%d\n", reply.Date, reply.DurationMinutes, reply.Status, len(reply.Slots))
	for _, s := range reply.Slots {
		fmt.Println(s)
	}
}

// publishService seeds the catalog mirror so service-based queries have a duration to use.
func publishService(ctx context.Context, brokers, businessID, serviceID string, duration int) error {
	list := kafkax.SplitBrokers(brokers)
	if len(list) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required to publish")
	}
	if strings.TrimSpace(serviceID) == "" || duration <= 0 {
		return fmt.Errorf("-service-id and -duration are required to publish")
	}

	payload, err := json.Marshal(map[string]any{
		"business_id":      businessID,
		"service_id":       serviceID,
		"name":             serviceID,
		"duration_minutes": duration,
		"active":           true,
		"updated_at":       time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(list...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	defer writer.Close()

	msg := kafkax.NewEventMessage(ctx, kafkax.EventMeta{
		EventID:   uuid.NewString(),
		EventType: catalogTopic,
	}, businessID+"/"+serviceID, payload)
	return writer.WriteMessages(ctx, msg)
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}

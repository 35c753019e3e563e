//go:build protogen

package schedule

import (
	"context"
	"time"

	schedulev1 "github.com/fbmeirelles/horamarcada/protos/gen/schedule/v1"

	"github.com/fbmeirelles/horamarcada/internal/availability"
	"github.com/fbmeirelles/horamarcada/internal/model"
	"github.com/fbmeirelles/horamarcada/libs/grpcx"
)

type grpcSource struct {
	client schedulev1.ScheduleServiceClient
}

// NewRemoteSource dials the schedule service and serves working hours and
// exclusions over gRPC, for deployments where schedule configuration lives
// in a separate service.
func NewRemoteSource(addr string) (availability.ScheduleSource, error) {
	if addr == "" {
		return nil, nil
	}
	conn, err := grpcx.Dial(context.Background(), addr, grpcx.DialOptions{Timeout: 3 * time.Second})
	if err != nil {
		return nil, err
	}
	return &grpcSource{client: schedulev1.NewScheduleServiceClient(conn)}, nil
}

func (s *grpcSource) WorkingHours(ctx context.Context, entityID string) (model.WorkingHours, error) {
	resp, err := s.client.GetWorkingHours(ctx, &schedulev1.WorkingHoursRequest{EntityId: entityID})
	if err != nil {
		return model.WorkingHours{}, err
	}
	hours := model.WorkingHours{
		EntityID:   entityID,
		Days:       make(map[time.Weekday]bool),
		StartHour:  int(resp.GetStartHour()),
		EndHour:    int(resp.GetEndHour()),
		LunchStart: resp.GetLunchStart(),
		LunchEnd:   resp.GetLunchEnd(),
	}
	for _, d := range resp.GetWorkingDays() {
		if d >= 0 && d <= 6 {
			hours.Days[time.Weekday(d)] = true
		}
	}
	return hours, nil
}

func (s *grpcSource) Exclusions(ctx context.Context, entityID string) ([]model.TimeExclusion, error) {
	resp, err := s.client.ListExclusions(ctx, &schedulev1.ExclusionsRequest{EntityId: entityID})
	if err != nil {
		return nil, err
	}
	out := make([]model.TimeExclusion, 0, len(resp.GetExclusions()))
	for _, ex := range resp.GetExclusions() {
		item := model.TimeExclusion{
			ID:         ex.GetId(),
			EntityID:   entityID,
			StartClock: ex.GetStartClock(),
			EndClock:   ex.GetEndClock(),
			Active:     ex.GetActive(),
			Label:      ex.GetLabel(),
		}
		if ex.GetHasWeekday() {
			d := time.Weekday(ex.GetWeekday())
			item.Weekday = &d
		}
		out = append(out, item)
	}
	return out, nil
}

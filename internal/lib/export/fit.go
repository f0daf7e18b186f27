package export

import (
	"bytes"
	"fmt"
	"math"
	"time"

	"github.com/muktihari/fit/encoder"
	"github.com/muktihari/fit/profile/mesgdef"
	"github.com/muktihari/fit/profile/typedef"
	"github.com/muktihari/fit/proto"
)

// semicirclesPerDegree converts degrees to FIT semicircles (2^31 / 180)
const semicirclesPerDegree = 11930464.7111

// FIT encodes the ridden track as a single-session cycling activity. A ride
// with no track points cannot be encoded.
func FIT(ride Ride) ([]byte, error) {
	if len(ride.Track) == 0 {
		return nil, fmt.Errorf("nothing to export: FIT requires a ridden track")
	}

	startTime := ride.Track[0].Timestamp
	endTime := ride.Track[len(ride.Track)-1].Timestamp
	if !ride.Stats.StartTime.IsZero() && ride.Stats.StartTime.Before(startTime) {
		startTime = ride.Stats.StartTime
	}

	elapsed := ride.Stats.TotalElapsed
	if elapsed <= 0 {
		elapsed = endTime.Sub(startTime)
	}
	timer := ride.Stats.TotalMoving
	if timer <= 0 {
		timer = elapsed
	}
	distance := ride.Stats.TotalDistance
	if distance <= 0 {
		distance = ride.Track[len(ride.Track)-1].DistanceTraveled
	}

	fit := &proto.FIT{
		Messages: []proto.Message{},
	}

	fileID := mesgdef.NewFileId(nil).
		SetType(typedef.FileActivity).
		SetManufacturer(typedef.ManufacturerDevelopment).
		SetProduct(1).
		SetTimeCreated(startTime)
	fit.Messages = append(fit.Messages, fileID.ToMesg(nil))

	for _, p := range ride.Track {
		record := mesgdef.NewRecord(nil).
			SetTimestamp(p.Timestamp).
			SetPositionLat(toSemicircles(p.Position.Latitude)).
			SetPositionLong(toSemicircles(p.Position.Longitude)).
			SetDistance(uint32(math.Round(p.DistanceTraveled * 100))).
			SetSpeed(toMillimetersPerSecond(p.Speed))
		if p.Altitude != nil {
			record.SetAltitude(toScaledAltitude(*p.Altitude))
		}
		fit.Messages = append(fit.Messages, record.ToMesg(nil))
	}

	lap := mesgdef.NewLap(nil).
		SetTimestamp(endTime).
		SetStartTime(startTime).
		SetTotalElapsedTime(toMillis(elapsed)).
		SetTotalTimerTime(toMillis(timer)).
		SetTotalDistance(uint32(math.Round(distance * 100)))
	fit.Messages = append(fit.Messages, lap.ToMesg(nil))

	session := mesgdef.NewSession(nil).
		SetTimestamp(endTime).
		SetStartTime(startTime).
		SetSport(typedef.SportCycling).
		SetTotalElapsedTime(toMillis(elapsed)).
		SetTotalTimerTime(toMillis(timer)).
		SetTotalDistance(uint32(math.Round(distance * 100))).
		SetNumLaps(1)
	if ride.Stats.AverageSpeed > 0 {
		session.SetAvgSpeed(toMillimetersPerSecond(ride.Stats.AverageSpeed))
	}
	fit.Messages = append(fit.Messages, session.ToMesg(nil))

	activity := mesgdef.NewActivity(nil).
		SetTimestamp(endTime).
		SetType(typedef.ActivityManual).
		SetTotalTimerTime(toMillis(timer)).
		SetNumSessions(1)
	fit.Messages = append(fit.Messages, activity.ToMesg(nil))

	var buf bytes.Buffer
	if err := encoder.New(&buf).Encode(fit); err != nil {
		return nil, fmt.Errorf("failed to encode FIT file: %w", err)
	}
	return buf.Bytes(), nil
}

func toSemicircles(deg float64) int32 {
	v := math.Round(deg * semicirclesPerDegree)
	if v < math.MinInt32 {
		return math.MinInt32
	}
	// 0x7FFFFFFF is the invalid marker; +180 lands one past it
	if v >= math.MaxInt32 {
		return math.MaxInt32 - 1
	}
	return int32(v)
}

func toMillimetersPerSecond(mps float64) uint16 {
	v := math.Round(mps * 1000)
	if v < 0 {
		return 0
	}
	// 0xFFFF is the invalid marker
	if v >= math.MaxUint16 {
		return math.MaxUint16 - 1
	}
	return uint16(v)
}

func toScaledAltitude(meters float64) uint16 {
	v := math.Round((meters + 500) * 5)
	if v < 0 {
		return 0
	}
	if v >= math.MaxUint16 {
		return math.MaxUint16 - 1
	}
	return uint16(v)
}

func toMillis(d time.Duration) uint32 {
	if d <= 0 {
		return 0
	}
	return uint32(d.Milliseconds())
}

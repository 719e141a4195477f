package clock

import (
	"testing"
	"time"
)

func TestRealClock_Now(t *testing.T) {
	clock := RealClock{}

	before := time.Now()
	now := clock.Now()
	after := time.Now()

	if now.Before(before) {
		t.Errorf("Clock time %v is before measurement time %v", now, before)
	}
	if now.After(after) {
		t.Errorf("Clock time %v is after measurement time %v", now, after)
	}
}

func TestMockClock_Now(t *testing.T) {
	fixedTime := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := &MockClock{CurrentTime: fixedTime}

	if !clock.Now().Equal(fixedTime) {
		t.Errorf("Expected %v, got %v", fixedTime, clock.Now())
	}

	// repeated calls stay fixed
	if !clock.Now().Equal(clock.Now()) {
		t.Error("Mock clock should return consistent time")
	}
}

func TestMockClock_Advance(t *testing.T) {
	initialTime := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := &MockClock{CurrentTime: initialTime}

	clock.Advance(90 * time.Minute)
	expected := initialTime.Add(90 * time.Minute)
	if !clock.Now().Equal(expected) {
		t.Errorf("Expected %v, got %v", expected, clock.Now())
	}

	// advancing backwards is allowed
	clock.Advance(-2 * time.Hour)
	expected = expected.Add(-2 * time.Hour)
	if !clock.Now().Equal(expected) {
		t.Errorf("Expected %v, got %v", expected, clock.Now())
	}
}

func TestClock_Interface_Compliance(t *testing.T) {
	var _ Clock = RealClock{}
	var _ Clock = &MockClock{}
}

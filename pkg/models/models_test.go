package models

import "testing"

func TestDirectionOpposite(t *testing.T) {
	if Buy.Opposite() != Sell {
		t.Error("противоположное BUY должно быть SELL")
	}
	if Sell.Opposite() != Buy {
		t.Error("противоположное SELL должно быть BUY")
	}
	if None.Opposite() != None {
		t.Error("противоположное NONE должно быть NONE")
	}
}

func TestDirectionString(t *testing.T) {
	tests := []struct {
		direction Direction
		want      string
	}{
		{Buy, "BUY"},
		{Sell, "SELL"},
		{None, "NONE"},
	}
	for _, tt := range tests {
		if got := tt.direction.String(); got != tt.want {
			t.Errorf("String(%d) = %q, ожидалось %q", tt.direction, got, tt.want)
		}
	}
}

func TestStageTerminal(t *testing.T) {
	stages := []PlanStage{StageInitial, StageStopPending, StageStopTriggered, StageLimitPending, StageEscalated}
	for _, stage := range stages {
		if stage.Terminal() {
			t.Errorf("стадия %s не должна быть терминальной", stage)
		}
	}
	if !StageClosed.Terminal() {
		t.Errorf("стадия %s должна быть терминальной", StageClosed)
	}
}

package models

import (
	"time"
)

// Direction направление сделки или свечи
type Direction int

const (
	None Direction = 0
	Buy  Direction = 1
	Sell Direction = -1
)

// String возвращает строковое представление направления
func (d Direction) String() string {
	switch d {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return "NONE"
	}
}

// Opposite возвращает противоположное направление
func (d Direction) Opposite() Direction {
	return -d
}

// Candle представляет свечу
type Candle struct {
	Symbol    string
	Interval  string
	OpenTime  time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	CloseTime time.Time
}

// Closes извлекает цены закрытия из последовательности свечей
func Closes(candles []*Candle) []float64 {
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	return closes
}

// Signal представляет торговый сигнал
type Signal struct {
	Symbol    string
	Direction Direction
	StopLoss  float64
	Price     float64
	Timestamp time.Time
}

// LevelKind тип горизонтального уровня
type LevelKind int

const (
	Support LevelKind = iota
	Resistance
)

// String возвращает строковое представление типа уровня
func (k LevelKind) String() string {
	if k == Resistance {
		return "RESISTANCE"
	}
	return "SUPPORT"
}

// Level представляет уровень поддержки или сопротивления
type Level struct {
	Price    float64
	Kind     LevelKind
	Strength int
	LastSeen int
}

// Position представляет открытую позицию
type Position struct {
	Symbol           string
	Direction        Direction
	EntryPrice       float64
	Size             float64
	StopLoss         float64
	OpenTime         time.Time
	UnrealizedProfit float64
}

// PlanStage стадия каскадного плана
type PlanStage string

const (
	StageInitial       PlanStage = "INITIAL"
	StageStopPending   PlanStage = "STOP_PENDING"
	StageStopTriggered PlanStage = "STOP_TRIGGERED"
	StageLimitPending  PlanStage = "LIMIT_PENDING"
	StageEscalated     PlanStage = "ESCALATED"
	StageClosed        PlanStage = "CLOSED"
)

// Terminal сообщает, является ли стадия терминальной
func (s PlanStage) Terminal() bool {
	return s == StageClosed
}

// OrderRef идентификатор ордера, выданного исполнителю
type OrderRef string

// OrderKind тип ордера
type OrderKind int

const (
	OrderMarket OrderKind = iota
	OrderStop
	OrderLimit
)

// String возвращает строковое представление типа ордера
func (k OrderKind) String() string {
	switch k {
	case OrderStop:
		return "STOP"
	case OrderLimit:
		return "LIMIT"
	default:
		return "MARKET"
	}
}

// EventKind тип уведомления от исполнителя
type EventKind int

const (
	EventFilled EventKind = iota
	EventTriggered
	EventCancelled
)

// OrderEvent асинхронное уведомление от исполнителя ордеров
type OrderEvent struct {
	Ref       OrderRef
	Symbol    string
	Kind      EventKind
	Price     float64
	Timestamp time.Time
}

// PlanSnapshot минимальное состояние плана для восстановления после перезапуска
type PlanSnapshot struct {
	Symbol     string
	Stage      PlanStage
	Direction  Direction
	BaseLot    float64
	TradeCount int
	EntryPrice float64
	StopPrice  float64
	Timestamp  time.Time
}

// SymbolStatus текущее состояние символа для отображения в интерфейсе
type SymbolStatus struct {
	Symbol         string
	Recommendation string
	Stage          PlanStage
	CurrentPrice   float64
	Profit         float64
	Timestamp      time.Time
}

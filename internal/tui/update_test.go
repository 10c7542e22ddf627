package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mechcc/hotchocolabot/internal/events"
)

func testModel(t *testing.T) model {
	t.Helper()
	m := newModel(make(chan events.Event), nil, nil, callbacks{})
	m.width, m.height = 80, 30
	return m
}

func key(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func TestHandleEvent_DispenseLifecycle(t *testing.T) {
	m := testModel(t)
	run := events.NewRunID()

	m.handleEvent(&events.DispenseStartEvent{BaseEvent: events.NewDispenseEvent(events.EventDispenseStart), RunID: run})
	if m.current == nil || m.current.ID != run.String() {
		t.Fatalf("current run not tracked: %+v", m.current)
	}

	m.handleEvent(&events.TemperatureReadEvent{BaseEvent: events.NewDispenseEvent(events.EventTemperatureRead), RunID: run, Celsius: 64.5})
	if !m.haveTemp || m.temperature != 64.5 {
		t.Errorf("temperature = %v (have %v), want 64.5", m.temperature, m.haveTemp)
	}

	m.handleEvent(&events.PumpStartEvent{BaseEvent: events.NewDispenseEvent(events.EventPumpStart), RunID: run, Ingredient: "Cocoa", Duration: 2 * time.Second})
	if m.current.Step != "Cocoa" {
		t.Errorf("step = %q, want Cocoa", m.current.Step)
	}

	m.handleEvent(&events.DispenseEndEvent{BaseEvent: events.NewDispenseEvent(events.EventDispenseEnd), RunID: run, Success: true})
	if m.current != nil {
		t.Error("current run should clear on end")
	}
	if m.stats.Completed != 1 || m.stats.Failed != 0 {
		t.Errorf("stats = %+v", m.stats)
	}
	if len(m.eventLines) != 4 {
		t.Errorf("event lines = %d, want 4", len(m.eventLines))
	}
}

func TestHandleEvent_FailedDispense(t *testing.T) {
	m := testModel(t)
	m.handleEvent(&events.DispenseEndEvent{BaseEvent: events.NewDispenseEvent(events.EventDispenseEnd), Error: "too hot"})
	if m.stats.Failed != 1 {
		t.Errorf("failed = %d, want 1", m.stats.Failed)
	}
}

func TestHandleEvent_EmergencyStopAndReset(t *testing.T) {
	m := testModel(t)

	m.handleEvent(&events.EmergencyStopEvent{BaseEvent: events.NewSafetyEvent(events.EventEmergencyStop), Reason: "button pressed"})
	m.handleEvent(&events.EmergencyStopEvent{BaseEvent: events.NewSafetyEvent(events.EventEmergencyStop), Reason: "again", AlreadyActive: true})
	if !m.status.Latched || m.status.Reason != "button pressed" {
		t.Errorf("status = %+v, want latched with first reason", m.status)
	}
	if m.stats.Stops != 1 {
		t.Errorf("stops = %d, want 1", m.stats.Stops)
	}

	m.handleEvent(&events.EmergencyResetEvent{BaseEvent: events.NewSafetyEvent(events.EventEmergencyReset), Accepted: true, ConsecutiveFailures: 1})
	if m.status.Latched || m.status.Failures != 1 {
		t.Errorf("status after reset = %+v", m.status)
	}

	m.handleEvent(&events.EmergencyStopEvent{BaseEvent: events.NewSafetyEvent(events.EventEmergencyStop), Reason: "third"})
	m.handleEvent(&events.EmergencyResetEvent{BaseEvent: events.NewSafetyEvent(events.EventEmergencyReset), Accepted: false, ConsecutiveFailures: 4})
	if !m.status.Latched {
		t.Error("refused reset must leave latch set")
	}
}

func TestHandleEvent_StateChange(t *testing.T) {
	m := testModel(t)
	m.handleEvent(&events.SafetyStateChangedEvent{BaseEvent: events.NewSafetyEvent(events.EventSafetyStateChanged), From: "safe", To: "operating"})
	if m.status.State != "operating" {
		t.Errorf("state = %q, want operating", m.status.State)
	}
}

func TestHandleEvent_TrimsBuffer(t *testing.T) {
	m := testModel(t)
	for i := 0; i < maxEventLines+1; i++ {
		m.handleEvent(&events.ErrorEvent{BaseEvent: events.NewEvent(events.EventError, events.SourceOperator), Message: "x"})
	}
	if got := len(m.eventLines); got != maxEventLines+1-trimEventLines {
		t.Errorf("event lines = %d, want %d", got, maxEventLines+1-trimEventLines)
	}
}

func TestHandleKey_Callbacks(t *testing.T) {
	var stops, resets, dispenses, quits int
	m := newModel(make(chan events.Event), nil, nil, callbacks{
		emergencyStop: func() { stops++ },
		reset:         func() { resets++ },
		dispense:      func() { dispenses++ },
		quit:          func() { quits++ },
	})

	next, _ := m.handleKey(key('e'))
	m = next.(model)
	next, _ = m.handleKey(key('r'))
	m = next.(model)
	next, _ = m.handleKey(key('d'))
	m = next.(model)
	if m.notice != "dispense requested" {
		t.Errorf("notice = %q", m.notice)
	}
	_, cmd := m.handleKey(key('q'))

	if stops != 1 || resets != 1 || dispenses != 1 || quits != 1 {
		t.Errorf("callbacks: stop=%d reset=%d dispense=%d quit=%d", stops, resets, dispenses, quits)
	}
	if cmd == nil {
		t.Fatal("q should return a quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should quit")
	}
}

func TestHandleKey_DispenseWhileBusy(t *testing.T) {
	called := false
	m := newModel(make(chan events.Event), nil, nil, callbacks{dispense: func() { called = true }})
	m.current = &runInfo{ID: "abc"}

	next, _ := m.handleKey(key('d'))
	if called {
		t.Error("dispense callback must not run while a dispense is in progress")
	}
	if !strings.Contains(next.(model).notice, "in progress") {
		t.Errorf("notice = %q", next.(model).notice)
	}
}

func TestHandleKey_EmergencyStopRefreshesStatus(t *testing.T) {
	latched := false
	m := newModel(make(chan events.Event), nil,
		func() Status { return Status{State: "unsafe", Latched: latched} },
		callbacks{emergencyStop: func() { latched = true }})

	next, _ := m.handleKey(key('e'))
	if !next.(model).status.Latched {
		t.Error("status should be refreshed after e-stop")
	}
}

func TestHandleKey_Scroll(t *testing.T) {
	m := testModel(t)
	for i := 0; i < 50; i++ {
		m.handleEvent(&events.ErrorEvent{BaseEvent: events.NewEvent(events.EventError, events.SourceOperator), Message: "x"})
	}
	bottom := m.scrollPos

	next, _ := m.handleKey(tea.KeyMsg{Type: tea.KeyUp})
	m = next.(model)
	if m.scrollPos != bottom-1 || m.autoScroll {
		t.Errorf("after up: pos=%d auto=%v", m.scrollPos, m.autoScroll)
	}

	next, _ = m.handleKey(key('G'))
	m = next.(model)
	if m.scrollPos != bottom || !m.autoScroll {
		t.Errorf("after G: pos=%d auto=%v, want %d", m.scrollPos, m.autoScroll, bottom)
	}

	next, _ = m.handleKey(key('g'))
	if next.(model).scrollPos != 0 {
		t.Error("g should scroll to top")
	}
}

func TestUpdate_TickRefreshesStatus(t *testing.T) {
	calls := 0
	m := newModel(make(chan events.Event), nil, func() Status {
		calls++
		return Status{State: "safe", Milk: 5 * time.Second}
	}, callbacks{})

	next, cmd := m.Update(tickMsg(time.Now()))
	if cmd == nil {
		t.Error("tick should schedule the next tick")
	}
	if next.(model).status.Milk != 5*time.Second {
		t.Errorf("status = %+v", next.(model).status)
	}
	if calls != 2 {
		t.Errorf("status polled %d times, want 2 (construct + tick)", calls)
	}
}

func TestUpdate_ChannelClosedQuits(t *testing.T) {
	m := testModel(t)
	_, cmd := m.Update(channelClosedMsg{})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("channel close should quit")
	}
}

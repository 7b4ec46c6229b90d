package mqtt

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
	logTest "github.com/sirupsen/logrus/hooks/test"
)

func TestNewMqtt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tests := []struct {
		name    string
		config  *ConfigMqtt
		wantErr bool
	}{
		{"nil конфигурация", nil, true},
		{"нет брокера", &ConfigMqtt{Topic: "molhame/+/data"}, true},
		{"неизвестная схема", &ConfigMqtt{Broker: "http://localhost:1883", Topic: "t"}, true},
		{"нет топика", &ConfigMqtt{Broker: "tcp://localhost:1883"}, true},
		{"неверный qos", &ConfigMqtt{Broker: "tcp://localhost:1883", Topic: "t", Qos: 3}, true},
		{"корректная", &ConfigMqtt{Broker: " tcp://localhost:1883 ", Topic: "molhame/+/data", ClientID: "test"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := newMqtt(ctx, tt.config)
			if (err != nil) != tt.wantErr {
				t.Fatalf("newMqtt() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if got.topic != "molhame/+/data" {
				t.Errorf("topic = %q", got.topic)
			}
			if cap(got.resultChan) != MaximumResultChan {
				t.Errorf("cap(resultChan) = %d", cap(got.resultChan))
			}
		})
	}
}

func newTestMqtt(t *testing.T, ctx context.Context, capacity uint) *Mqtt {
	t.Helper()
	m, err := newMqtt(ctx, &ConfigMqtt{
		Broker:         "tcp://127.0.0.1:1883",
		Topic:          "molhame/+/data",
		ResultCapacity: capacity,
	})
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestMqtt_Accept(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := newTestMqtt(t, ctx, 2)

	m.accept("molhame/a1/data", []byte(`{"device":"a1","temperatura":22.5}`))
	m.accept("molhame/a1/data", []byte(`not json`))
	m.accept("molhame/a1/data", []byte(`[1,2]`))
	m.accept("molhame/a2/data", []byte(`{"device":"a2"}`))
	// Очередь заполнена, замер отбрасывается без блокировки
	m.accept("molhame/a3/data", []byte(`{"device":"a3"}`))

	for _, want := range []string{"a1", "a2"} {
		got, err := m.EmmitReading()
		if err != nil {
			t.Fatal(err)
		}
		if got.Source() != want {
			t.Errorf("Source() = %q, want %q", got.Source(), want)
		}
	}
	if len(m.resultChan) != 0 {
		t.Errorf("в очереди остались замеры: %d", len(m.resultChan))
	}
}

func TestMqtt_EmmitReadingCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := newTestMqtt(t, ctx, 1)

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := m.EmmitReading()
	if errors.Cause(err) != context.Canceled {
		t.Errorf("EmmitReading() error = %v, want context.Canceled", err)
	}
}

func TestMqtt_ConnectState(t *testing.T) {
	log, hook := logTest.NewNullLogger()
	m, err := newMqtt(context.Background(), &ConfigMqtt{
		Log:    log,
		Broker: "tcp://127.0.0.1:1883",
		Topic:  "molhame/+/data",
	})
	if err != nil {
		t.Fatal(err)
	}
	failures := func() int {
		n := 0
		for _, entry := range hook.AllEntries() {
			if entry.Level == logrus.WarnLevel && strings.HasPrefix(entry.Message, "ошибка подключения") {
				n++
			}
		}
		return n
	}

	// Повторные ошибки подряд пишутся в лог один раз
	m.connectFailed(errors.New("connection refused"))
	m.connectFailed(errors.New("connection refused"))
	if got := failures(); got != 1 {
		t.Errorf("записей об ошибке %d, want 1", got)
	}
	m.connectSucceeded()
	m.connectFailed(errors.New("connection refused"))
	if got := failures(); got != 2 {
		t.Errorf("записей об ошибке после переподключения %d, want 2", got)
	}

	// Цикл подключения и обработчик клиента меняют состояние из разных горутин
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			m.connectFailed(errors.New("connection refused"))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			m.connectSucceeded()
		}
	}()
	wg.Wait()
	if state := connectType(m.connectedFlag.Load()); state != connectFailed && state != connectSuccess {
		t.Errorf("состояние подключения %d", state)
	}
}

package memory

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/kirsrus/telerelay/model"
)

func TestNewThresholds(t *testing.T) {
	initial := model.ThresholdSet{TemperatureMax: 1, HumidityMin: 2, LuminosityMin: 3, DistanceMin: 4, DistanceMax: 5}
	tests := []struct {
		name    string
		config  *ConfigThresholds
		want    model.ThresholdSet
		wantErr bool
	}{
		{name: "без конфигурации", config: nil, wantErr: true},
		{name: "значения по умолчанию", config: &ConfigThresholds{}, want: model.DefaultThresholds()},
		{name: "заданные значения", config: &ConfigThresholds{Initial: &initial}, want: initial},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewThresholds(tt.config)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewThresholds() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if got.Get() != tt.want {
				t.Errorf("Get() = %+v, want %+v", got.Get(), tt.want)
			}
		})
	}
}

func TestThresholds_Defaults(t *testing.T) {
	thresholds, err := NewThresholds(&ConfigThresholds{})
	if err != nil {
		t.Fatal(err)
	}
	want := model.ThresholdSet{TemperatureMax: 30, HumidityMin: 40, LuminosityMin: 200, DistanceMin: 5, DistanceMax: 50}
	if got := thresholds.Get(); got != want {
		t.Errorf("Get() = %+v, want %+v", got, want)
	}
}

func TestThresholds_Merge(t *testing.T) {
	tests := []struct {
		name  string
		patch string
		want  func(model.ThresholdSet) model.ThresholdSet
	}{
		{
			name:  "одно поле",
			patch: `{"temperatura_max": 25}`,
			want: func(s model.ThresholdSet) model.ThresholdSet {
				s.TemperatureMax = 25
				return s
			},
		},
		{
			name:  "пустое обновление",
			patch: `{}`,
			want:  func(s model.ThresholdSet) model.ThresholdSet { return s },
		},
		{
			name:  "null не меняет поле",
			patch: `{"temperatura_max": null}`,
			want:  func(s model.ThresholdSet) model.ThresholdSet { return s },
		},
		{
			name:  "ноль допустимое значение",
			patch: `{"distancia_min": 0}`,
			want: func(s model.ThresholdSet) model.ThresholdSet {
				s.DistanceMin = 0
				return s
			},
		},
		{
			name:  "отрицательное значение принимается как есть",
			patch: `{"distancia_max": -10.5}`,
			want: func(s model.ThresholdSet) model.ThresholdSet {
				s.DistanceMax = -10.5
				return s
			},
		},
		{
			name:  "неизвестные поля игнорируются",
			patch: `{"pressao_max": 1000, "umidade_min": 55}`,
			want: func(s model.ThresholdSet) model.ThresholdSet {
				s.HumidityMin = 55
				return s
			},
		},
		{
			name:  "все поля",
			patch: `{"temperatura_max": 1, "umidade_min": 2, "luminosidade_min": 3, "distancia_min": 4, "distancia_max": 5}`,
			want: func(model.ThresholdSet) model.ThresholdSet {
				return model.ThresholdSet{TemperatureMax: 1, HumidityMin: 2, LuminosityMin: 3, DistanceMin: 4, DistanceMax: 5}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			thresholds, err := NewThresholds(&ConfigThresholds{})
			if err != nil {
				t.Fatal(err)
			}
			var patch model.ThresholdPatch
			if err := json.Unmarshal([]byte(tt.patch), &patch); err != nil {
				t.Fatal(err)
			}
			want := tt.want(model.DefaultThresholds())
			if got := thresholds.Merge(patch); got != want {
				t.Errorf("Merge() = %+v, want %+v", got, want)
			}
			if got := thresholds.Get(); got != want {
				t.Errorf("Get() после Merge() = %+v, want %+v", got, want)
			}
		})
	}
}

func TestThresholds_MergeSequence(t *testing.T) {
	thresholds, err := NewThresholds(&ConfigThresholds{})
	if err != nil {
		t.Fatal(err)
	}
	thresholds.Merge(model.ThresholdPatch{TemperatureMax: model.Float(25)})

	want := model.DefaultThresholds()
	want.TemperatureMax = 25
	if got := thresholds.Merge(model.ThresholdPatch{}); got != want {
		t.Errorf("Merge({}) = %+v, want %+v", got, want)
	}
}

func TestThresholds_ConcurrentMergeNotInterleaved(t *testing.T) {
	thresholds, err := NewThresholds(&ConfigThresholds{})
	if err != nil {
		t.Fatal(err)
	}

	// Каждое обновление задаёт все поля одним и тем же значением, поэтому любой
	// прочитанный набор обязан состоять из одинаковых значений
	uniform := func(s model.ThresholdSet) bool {
		return s.TemperatureMax == s.HumidityMin && s.HumidityMin == s.LuminosityMin &&
			s.LuminosityMin == s.DistanceMin && s.DistanceMin == s.DistanceMax
	}
	thresholds.Merge(patchAll(0))

	var wg sync.WaitGroup
	for w := 1; w <= 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 300; i++ {
				if got := thresholds.Merge(patchAll(float64(w*1000 + i))); !uniform(got) {
					t.Errorf("Merge() вернул смешанный набор: %+v", got)
					return
				}
			}
		}(w)
	}
	for i := 0; i < 1000; i++ {
		if got := thresholds.Get(); !uniform(got) {
			t.Fatalf("Get() вернул смешанный набор: %+v", got)
		}
	}
	wg.Wait()
}

func patchAll(v float64) model.ThresholdPatch {
	return model.ThresholdPatch{
		TemperatureMax: model.Float(v),
		HumidityMin:    model.Float(v),
		LuminosityMin:  model.Float(v),
		DistanceMin:    model.Float(v),
		DistanceMax:    model.Float(v),
	}
}

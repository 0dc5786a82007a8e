package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ChartDatum одна корзина графика длительности звонков.
// Поле Value всегда дублирует Count: рендерер работает с обобщёнными
// объектами и ожидает поле value.
type ChartDatum struct {
	Name       string  `json:"name"`
	Count      int     `json:"count"`
	Value      int     `json:"value"`
	Percentage float64 `json:"percentage,omitempty"`
}

// ChartDataset упорядоченный набор корзин; порядок — порядок отображения
type ChartDataset []ChartDatum

// PersistedRecord сохранённый набор данных пользователя
type PersistedRecord struct {
	Email   string       `json:"email"`
	Dataset ChartDataset `json:"data"`
	SavedAt time.Time    `json:"savedAt"`
}

// IssueDatum корзина графика причин неудачных звонков
type IssueDatum struct {
	Issue string `json:"issue"`
	Value int    `json:"value"`
	Fill  string `json:"fill"`
}

// HostilityDatum уровень агрессивности клиентов
type HostilityDatum struct {
	Label string `json:"label"`
	Value int    `json:"value"`
	Color string `json:"color"`
}

// DefaultCallDuration возвращает набор длительности звонков по умолчанию
func DefaultCallDuration() ChartDataset {
	return ChartDataset{
		{Name: "0-60s", Count: 4000, Value: 4000},
		{Name: "60-120s", Count: 3000, Value: 3000},
		{Name: "120-180s", Count: 2000, Value: 2000},
		{Name: "180s+", Count: 1000, Value: 1000},
	}
}

// DefaultIssues возвращает статический набор причин неудачных звонков
func DefaultIssues() []IssueDatum {
	return []IssueDatum{
		{Issue: "Long Hold Time", Value: 450, Fill: "#ef4444"},
		{Issue: "Agent Misunderstood", Value: 320, Fill: "#f97316"},
		{Issue: "Transfer Loop", Value: 210, Fill: "#eab308"},
		{Issue: "Dropped Call", Value: 150, Fill: "#84cc16"},
		{Issue: "Wrong Department", Value: 90, Fill: "#22c55e"},
	}
}

// DefaultHostility возвращает статический набор уровней агрессивности
func DefaultHostility() []HostilityDatum {
	return []HostilityDatum{
		{Label: "Low", Value: 65, Color: "#22c55e"},
		{Label: "Medium", Value: 25, Color: "#facc15"},
		{Label: "High", Value: 10, Color: "#ef4444"},
	}
}

// Clone возвращает независимую копию набора
func (d ChartDataset) Clone() ChartDataset {
	if d == nil {
		return nil
	}
	out := make(ChartDataset, len(d))
	copy(out, d)
	return out
}

// Equal сравнивает наборы по полям
func (d ChartDataset) Equal(other ChartDataset) bool {
	if len(d) != len(other) {
		return false
	}
	for i := range d {
		if d[i] != other[i] {
			return false
		}
	}
	return true
}

// Total сумма счётчиков всех корзин
func (d ChartDataset) Total() int {
	total := 0
	for _, datum := range d {
		total += datum.Count
	}
	return total
}

// WithPercentages возвращает копию набора с вычисленной долей каждой корзины.
// При нулевой сумме все доли равны нулю.
func (d ChartDataset) WithPercentages() ChartDataset {
	out := d.Clone()
	total := d.Total()
	for i := range out {
		if total > 0 {
			out[i].Percentage = float64(out[i].Count) / float64(total) * 100
		} else {
			out[i].Percentage = 0
		}
	}
	return out
}

// Validate проверяет инварианты набора: уникальные имена корзин,
// неотрицательные счётчики, value == count
func (d ChartDataset) Validate() error {
	seen := make(map[string]bool, len(d))
	for i, datum := range d {
		if datum.Name == "" {
			return fmt.Errorf("bucket %d has empty name", i)
		}
		if seen[datum.Name] {
			return fmt.Errorf("duplicate bucket name %q", datum.Name)
		}
		seen[datum.Name] = true
		if datum.Count < 0 {
			return fmt.Errorf("bucket %q has negative count %d", datum.Name, datum.Count)
		}
		if datum.Value != datum.Count {
			return fmt.Errorf("bucket %q: value %d != count %d", datum.Name, datum.Value, datum.Count)
		}
	}
	return nil
}

// ParseCount разбирает пользовательский ввод счётчика.
// Любой нечисловой или отрицательный ввод даёт 0, ошибки не бывает.
func ParseCount(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

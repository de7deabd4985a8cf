// Package stats aggregates validation outcomes over a sliding 24h window.
// It is fed from the event bus and never touches the validation path.
package stats

import (
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	defaultMaxCount = 50
	retentionHours  = 24
	hourFormat      = "2006010215"
)

// nolint
var now = time.Now

// Aggregator counts string keys per hour and keeps the last 24 hours.
type Aggregator struct {
	// hour -> ( key -> count )
	hourResults map[string]map[string]int
	Name        string
	currentHour string
	maxCount    int
	lock        sync.RWMutex
	stageData   map[string]int
}

// NewAggregator returns a new aggregator with the specified name.
func NewAggregator(name string) *Aggregator {
	return NewAggregatorWithMax(name, defaultMaxCount)
}

// NewAggregatorWithMax returns a new aggregator keeping at most maxCount keys.
func NewAggregatorWithMax(name string, maxCount uint) *Aggregator {
	return &Aggregator{
		Name:        name,
		maxCount:    int(maxCount),
		stageData:   make(map[string]int),
		hourResults: make(map[string]map[string]int),
		currentHour: currentHour(),
	}
}

// Put counts one occurrence of key.
func (s *Aggregator) Put(key string) {
	key = strings.TrimSpace(key)
	if len(key) == 0 {
		return
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	s.hourSwitch()
	s.stageData[key]++
}

// AggregateResult sums the last 24 hours per key, capped at maxCount keys.
func (s *Aggregator) AggregateResult() map[string]int {
	result := make(map[string]int)

	s.lock.Lock()
	defer s.lock.Unlock()

	s.hourSwitch()

	for _, hv := range s.hourResults {
		for k, v := range hv {
			result[k] += v
		}
	}

	// counts staged in the running hour are part of the window too
	for k, v := range s.stageData {
		result[k] += v
	}

	return topValues(result, s.maxCount)
}

func currentHour() string {
	return now().Format(hourFormat)
}

// hourSwitch seals the staged counts into the finished hour and drops hours
// older than the retention window. Callers must hold the lock.
func (s *Aggregator) hourSwitch() {
	hour := currentHour()
	if hour == s.currentHour {
		return
	}

	s.hourResults[s.currentHour] = topValues(s.stageData, s.maxCount*2)

	for k := range s.hourResults {
		h, _ := time.Parse(hourFormat, k)

		if h.Before(now().Add(-1 * retentionHours * time.Hour)) {
			delete(s.hourResults, k)
		}
	}

	s.currentHour = hour
	s.stageData = make(map[string]int)
}

// topValues keeps the maxCount highest counted keys.
func topValues(in map[string]int, maxCount int) map[string]int {
	if len(in) <= maxCount {
		return in
	}

	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}

	sort.Slice(keys, func(i, j int) bool {
		if in[keys[i]] != in[keys[j]] {
			return in[keys[i]] > in[keys[j]]
		}

		return keys[i] < keys[j]
	})

	res := make(map[string]int, maxCount)
	for _, k := range keys[:maxCount] {
		res[k] = in[k]
	}

	return res
}

package stats

import "github.com/stretchr/testify/mock"

var _ StatsProvider = (*MockStatsUpdater)(nil)

type MockStatsUpdater struct {
	mock.Mock
}

// NewMockStatsUpdater returns a mock that accepts any metric registration
// and counter update. Tests needing exact expectations build their own.
func NewMockStatsUpdater() *MockStatsUpdater {
	m := &MockStatsUpdater{}
	m.On("RegisterMetric", mock.Anything).Return().Maybe()
	m.On("Incr", mock.Anything).Return().Maybe()
	m.On("Decr", mock.Anything).Return().Maybe()
	m.On("Run").Return().Maybe()
	return m
}

func (m *MockStatsUpdater) Incr(name string) {
	m.Called(name)
}

func (m *MockStatsUpdater) Decr(name string) {
	m.Called(name)
}

func (m *MockStatsUpdater) RegisterMetric(name string) {
	m.Called(name)
}

func (m *MockStatsUpdater) Run() {
	m.Called()
}

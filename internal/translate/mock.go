package translate

import "context"

// Mock returns a deterministic placeholder translation for offline testing.
type Mock struct{}

func NewMock() *Mock {
	return &Mock{}
}

func (m *Mock) Translate(_ context.Context, text, target string) (string, error) {
	return "[" + target + "] " + text, nil
}

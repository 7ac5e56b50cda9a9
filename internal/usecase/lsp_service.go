package usecase

import (
	"sync"

	"lsp-backend/internal/config"
)

// SupportedProtocols is returned by lsps0.list_protocols.
var SupportedProtocols = []int{1}

type InfoResponse struct {
	Options config.LSPOptions `json:"options"`
}

// LSPService serves the advertised policy. Options may be replaced at run
// time; orders copy what they need at creation.
type LSPService struct {
	mu      sync.RWMutex
	options config.LSPOptions
}

func NewLSPService(options config.LSPOptions) *LSPService {
	return &LSPService{options: options}
}

func (s *LSPService) ListProtocols() []int {
	out := make([]int, len(SupportedProtocols))
	copy(out, SupportedProtocols)
	return out
}

func (s *LSPService) GetInfo() InfoResponse {
	return InfoResponse{Options: s.Options()}
}

func (s *LSPService) Options() config.LSPOptions {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.options
}

// SetOptions validates and applies option overrides.
func (s *LSPService) SetOptions(values map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := s.options.SetAll(values)
	if err != nil {
		return err
	}
	s.options = next
	return nil
}

// ReloadFile applies the overrides in an options file. Keys the file does
// not name keep their current values.
func (s *LSPService) ReloadFile(path string) error {
	values, err := config.ReadLSPOptionsFile(path)
	if err != nil {
		return err
	}
	return s.SetOptions(values)
}

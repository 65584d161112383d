// Package tokenlist is the boundary to the token metadata service. Plugins
// treat its answers as authoritative and do not cache them across
// compositions.
package tokenlist

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/Iwinswap/defi-logic-composer-go/protocols/token"
	"gopkg.in/yaml.v3"
)

// ErrNoTokenList is returned when the provider knows no list for the request.
var ErrNoTokenList = errors.New("tokenlist: no token list")

// Provider serves per-protocol and flash-loan token lists.
type Provider interface {
	ProtocolTokenList(ctx context.Context, chainID uint64, protocolID string) ([]token.Ref, error)
	FlashLoanTokenList(ctx context.Context, chainID uint64) ([]token.Ref, error)
}

// Entry is one token in a list file; the chain comes from the enclosing key.
type Entry struct {
	Address  string `yaml:"address"`
	Symbol   string `yaml:"symbol"`
	Decimals uint8  `yaml:"decimals"`
}

// File is the on-disk shape of a static token list.
type File struct {
	Protocols  map[uint64]map[string][]Entry `yaml:"protocols"`
	FlashLoans map[uint64][]Entry            `yaml:"flash_loans"`
}

// Static is an in-memory Provider.
type Static struct {
	mu         sync.RWMutex
	protocols  map[uint64]map[string][]token.Ref
	flashLoans map[uint64][]token.Ref
}

// NewStatic creates an empty static provider.
func NewStatic() *Static {
	return &Static{
		protocols:  make(map[uint64]map[string][]token.Ref),
		flashLoans: make(map[uint64][]token.Ref),
	}
}

// SetProtocolTokens replaces the list for (chain, protocol).
func (s *Static) SetProtocolTokens(chainID uint64, protocolID string, tokens []token.Ref) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.protocols[chainID] == nil {
		s.protocols[chainID] = make(map[string][]token.Ref)
	}
	s.protocols[chainID][protocolID] = append([]token.Ref(nil), tokens...)
}

// SetFlashLoanTokens replaces the flash-loanable list for a chain.
func (s *Static) SetFlashLoanTokens(chainID uint64, tokens []token.Ref) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flashLoans[chainID] = append([]token.Ref(nil), tokens...)
}

// ProtocolTokenList implements Provider.
func (s *Static) ProtocolTokenList(_ context.Context, chainID uint64, protocolID string) ([]token.Ref, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tokens, ok := s.protocols[chainID][protocolID]
	if !ok {
		return nil, fmt.Errorf("%w: chain %d protocol %s", ErrNoTokenList, chainID, protocolID)
	}
	return append([]token.Ref(nil), tokens...), nil
}

// FlashLoanTokenList implements Provider.
func (s *Static) FlashLoanTokenList(_ context.Context, chainID uint64) ([]token.Ref, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tokens, ok := s.flashLoans[chainID]
	if !ok {
		return nil, fmt.Errorf("%w: chain %d flash loans", ErrNoTokenList, chainID)
	}
	return append([]token.Ref(nil), tokens...), nil
}

// Tokens indexes every token listed on chainID, across protocol and
// flash-loan lists.
func (s *Static) Tokens(chainID uint64) *token.Index {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var all []token.Ref
	seen := make(map[token.Key]struct{})
	add := func(tokens []token.Ref) {
		for _, t := range tokens {
			if _, ok := seen[t.Key()]; ok {
				continue
			}
			seen[t.Key()] = struct{}{}
			all = append(all, t)
		}
	}
	for _, tokens := range s.protocols[chainID] {
		add(tokens)
	}
	add(s.flashLoans[chainID])
	return token.NewIndex(all)
}

// Load reads a YAML token list file into a new Static provider.
func Load(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return FromFile(f)
}

// FromFile converts a decoded list file into a Static provider.
func FromFile(f File) (*Static, error) {
	s := NewStatic()
	for chainID, byProtocol := range f.Protocols {
		for protocolID, entries := range byProtocol {
			refs, err := toRefs(chainID, entries)
			if err != nil {
				return nil, fmt.Errorf("tokenlist: chain %d protocol %s: %w", chainID, protocolID, err)
			}
			s.SetProtocolTokens(chainID, protocolID, refs)
		}
	}
	for chainID, entries := range f.FlashLoans {
		refs, err := toRefs(chainID, entries)
		if err != nil {
			return nil, fmt.Errorf("tokenlist: chain %d flash loans: %w", chainID, err)
		}
		s.SetFlashLoanTokens(chainID, refs)
	}
	return s, nil
}

func toRefs(chainID uint64, entries []Entry) ([]token.Ref, error) {
	refs := make([]token.Ref, 0, len(entries))
	for _, e := range entries {
		ref, err := e.Ref(chainID)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

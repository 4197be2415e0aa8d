package staking

import (
	"errors"
	"fmt"
	"strings"
)

// Action names a privileged engine operation.
type Action string

const (
	ActionAddReward         Action = "staking.addReward"
	ActionSetRewardDuration Action = "staking.setRewardDuration"
	ActionPause             Action = "staking.pause"
	ActionUnpause           Action = "staking.unpause"
	ActionRecoverAsset      Action = "staking.recoverAsset"
)

// Authorization is the already-verified identity presented with a privileged
// call. Verification of the credential itself happens outside the engine.
type Authorization struct {
	Subject string
	Scopes  []string
}

// HasScope reports whether the authorization carries scope.
func (a Authorization) HasScope(scope string) bool {
	for _, s := range a.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Authorizer decides whether an authorization may perform an action.
type Authorizer interface {
	Authorize(auth Authorization, action Action) error
}

type denyAll struct{}

func (denyAll) Authorize(Authorization, Action) error {
	return fmt.Errorf("%w: no authorizer configured", ErrUnauthorized)
}

// ScopeAuthorizer grants actions to authorizations holding the mapped scope.
// Actions without an explicit mapping require the default scope.
type ScopeAuthorizer struct {
	defaultScope string
	scopes       map[Action]string
}

// NewScopeAuthorizer returns an authorizer requiring defaultScope for every action.
func NewScopeAuthorizer(defaultScope string) *ScopeAuthorizer {
	return &ScopeAuthorizer{defaultScope: strings.TrimSpace(defaultScope), scopes: make(map[Action]string)}
}

// Require overrides the scope needed for a single action.
func (s *ScopeAuthorizer) Require(action Action, scope string) *ScopeAuthorizer {
	s.scopes[action] = strings.TrimSpace(scope)
	return s
}

// Authorize implements Authorizer.
func (s *ScopeAuthorizer) Authorize(auth Authorization, action Action) error {
	if s == nil {
		return ErrUnauthorized
	}
	if strings.TrimSpace(auth.Subject) == "" {
		return fmt.Errorf("%w: missing subject", ErrUnauthorized)
	}
	scope, ok := s.scopes[action]
	if !ok {
		scope = s.defaultScope
	}
	if scope == "" || !auth.HasScope(scope) {
		return fmt.Errorf("%w: %s requires scope %q", ErrUnauthorized, action, scope)
	}
	return nil
}

func (e *Engine) authorize(auth Authorization, action Action) error {
	if e.authorizer == nil {
		return ErrUnauthorized
	}
	err := e.authorizer.Authorize(auth, action)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUnauthorized) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUnauthorized, err)
}

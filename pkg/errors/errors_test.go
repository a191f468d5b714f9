package errors_test

import (
	"errors"
	"fmt"
	"testing"

	pkgerrors "github.com/lane711/sonicjs/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := pkgerrors.New("test error")
	assert.NotNil(t, err)
	assert.Equal(t, "test error", err.Error())
}

func TestNotFoundError(t *testing.T) {
	t.Run("plugin", func(t *testing.T) {
		err := pkgerrors.NewNotFoundError("plugin", "email")
		assert.Equal(t, "plugin with ID email not found", err.Error())
		assert.True(t, errors.Is(err, pkgerrors.ErrNotFound))
		assert.True(t, pkgerrors.IsNotFound(err))
	})

	t.Run("namespace", func(t *testing.T) {
		err := pkgerrors.NewNotFoundError("namespace", "bogus")
		assert.Equal(t, "Unknown namespace: bogus", err.Error())
		assert.True(t, pkgerrors.IsNotFound(err))
	})

	t.Run("wrapped error", func(t *testing.T) {
		base := pkgerrors.NewNotFoundError("plugin", "test")
		wrapped := fmt.Errorf("activate: %w", base)
		assert.True(t, pkgerrors.IsNotFound(wrapped))
	})
}

func TestValidationError(t *testing.T) {
	t.Run("with field", func(t *testing.T) {
		err := &pkgerrors.ValidationError{
			Field:   "pattern",
			Message: "Pattern is required",
		}
		assert.Equal(t, "validation failed for field pattern: Pattern is required", err.Error())
		assert.True(t, errors.Is(err, pkgerrors.ErrInvalidInput))
	})

	t.Run("without field", func(t *testing.T) {
		err := &pkgerrors.ValidationError{Message: "invalid settings"}
		assert.Equal(t, "validation failed: invalid settings", err.Error())
		assert.True(t, pkgerrors.IsValidationError(err))
	})

	t.Run("wrap nil", func(t *testing.T) {
		assert.NoError(t, pkgerrors.WrapValidation("field", nil))
	})
}

func TestDomainRuleError(t *testing.T) {
	tests := []struct {
		name     string
		err      *pkgerrors.DomainRuleError
		rule     pkgerrors.Rule
		contains string
	}{
		{
			name:     "core plugin",
			err:      pkgerrors.NewCorePluginError("auth", "deactivate"),
			rule:     pkgerrors.RuleCorePlugin,
			contains: "Cannot deactivate core plugin auth",
		},
		{
			name:     "dependency",
			err:      pkgerrors.NewDependencyNotActiveError("email", "queue"),
			rule:     pkgerrors.RuleDependency,
			contains: "Required dependency 'queue' is not active",
		},
		{
			name:     "dependents",
			err:      pkgerrors.NewDependentsActiveError("queue", []string{"Email", "Webhooks"}),
			rule:     pkgerrors.RuleDependents,
			contains: "Email, Webhooks",
		},
		{
			name:     "transition",
			err:      pkgerrors.NewTransitionError("email", "uninstalled", "activate"),
			rule:     pkgerrors.RuleTransition,
			contains: "while it is uninstalled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, tt.err.Error(), tt.contains)
			assert.True(t, pkgerrors.IsDomainRule(tt.err))
			assert.True(t, pkgerrors.IsRule(fmt.Errorf("wrapped: %w", tt.err), tt.rule))
			assert.False(t, pkgerrors.IsNotFound(tt.err))
		})
	}
}

func TestSubscriberError(t *testing.T) {
	base := errors.New("boom")
	err := &pkgerrors.SubscriberError{Event: "plugin:activated", Index: 2, Owner: "email", Err: base}

	assert.Contains(t, err.Error(), "subscriber 2 (email)")
	assert.Contains(t, err.Error(), "plugin:activated")
	assert.True(t, errors.Is(err, base))
	assert.True(t, errors.Is(err, pkgerrors.ErrSubscriber))
}

func TestResourceError(t *testing.T) {
	base := errors.New("disk full")
	err := pkgerrors.WrapResource("save", "plugin store", "plugins.yaml", base)
	require.Error(t, err)
	assert.Equal(t, "failed to save plugin store plugins.yaml: disk full", err.Error())
	assert.True(t, errors.Is(err, base))
	assert.NoError(t, pkgerrors.WrapResource("save", "plugin store", "", nil))
}

func TestAlreadyExistsError(t *testing.T) {
	err := pkgerrors.NewAlreadyExistsError("plugin", "email")
	assert.Equal(t, "plugin with ID email already exists", err.Error())
	assert.True(t, pkgerrors.IsAlreadyExists(err))
}

type fieldsError struct{ fields []string }

func (e *fieldsError) Error() string { return "bad fields" }
func (e *fieldsError) Details() any  { return e.fields }

func TestDetails(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &fieldsError{fields: []string{"host"}})
	details, ok := pkgerrors.Details(err)
	require.True(t, ok)
	assert.Equal(t, []string{"host"}, details)

	_, ok = pkgerrors.Details(pkgerrors.NewValidationError("x", nil, "bad"))
	assert.False(t, ok)
	_, ok = pkgerrors.Details(nil)
	assert.False(t, ok)
}

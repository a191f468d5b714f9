// Package errors provides custom error types for the sonicjs services.
// These errors enable programmatic error checking across the hook registry,
// the plugin manager and the cache facade, and map cleanly onto HTTP
// status codes in the admin API.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// New returns an error that formats as the given text.
// It's an alias for the standard library errors.New for convenience.
var New = errors.New

// Is and As re-export the standard library helpers.
var (
	Is = errors.Is
	As = errors.As
)

// Common sentinel errors
var (
	// ErrNotFound indicates that a requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates that a resource already exists
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates that provided input was invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrDomainRule indicates an operation that violates a lifecycle rule
	ErrDomainRule = errors.New("domain rule violated")

	// ErrSubscriber indicates that an event subscriber failed
	ErrSubscriber = errors.New("subscriber failed")
)

// NotFoundError represents an error when a resource is not found
type NotFoundError struct {
	Resource string
	ID       string
}

// Error implements the error interface
func (e *NotFoundError) Error() string {
	if e.Resource == "namespace" {
		return fmt.Sprintf("Unknown namespace: %s", e.ID)
	}
	return fmt.Sprintf("%s with ID %s not found", e.Resource, e.ID)
}

// Is implements errors.Is support
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// ValidationError represents a validation failure
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// Is implements errors.Is support
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewValidationError creates a new ValidationError
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// AlreadyExistsError represents an attempt to create a duplicate resource
type AlreadyExistsError struct {
	Resource string
	ID       string
}

// Error implements the error interface
func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s with ID %s already exists", e.Resource, e.ID)
}

// Is implements errors.Is support
func (e *AlreadyExistsError) Is(target error) bool {
	return target == ErrAlreadyExists
}

// NewAlreadyExistsError creates a new AlreadyExistsError
func NewAlreadyExistsError(resource, id string) *AlreadyExistsError {
	return &AlreadyExistsError{Resource: resource, ID: id}
}

// Rule identifies which lifecycle rule a DomainRuleError violated.
type Rule string

// Lifecycle rules enforced by the plugin manager.
const (
	// RuleCorePlugin forbids deactivating or uninstalling core plugins.
	RuleCorePlugin Rule = "core_plugin"

	// RuleDependency requires dependencies to be active before activation.
	RuleDependency Rule = "dependency_not_active"

	// RuleDependents forbids deactivating a plugin other active plugins need.
	RuleDependents Rule = "has_active_dependents"

	// RuleTransition forbids a transition out of the current status.
	RuleTransition Rule = "invalid_transition"
)

// DomainRuleError represents an illegal state transition.
type DomainRuleError struct {
	Rule    Rule
	ID      string
	Message string
}

// Error implements the error interface
func (e *DomainRuleError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s: rule %s violated", e.ID, e.Rule)
}

// Is implements errors.Is support
func (e *DomainRuleError) Is(target error) bool {
	return target == ErrDomainRule
}

// NewCorePluginError reports an attempt to deactivate or uninstall a core plugin.
func NewCorePluginError(id, action string) *DomainRuleError {
	return &DomainRuleError{
		Rule:    RuleCorePlugin,
		ID:      id,
		Message: fmt.Sprintf("Cannot %s core plugin %s", action, id),
	}
}

// NewDependencyNotActiveError reports an activation with an inactive dependency.
func NewDependencyNotActiveError(id, dependency string) *DomainRuleError {
	return &DomainRuleError{
		Rule:    RuleDependency,
		ID:      id,
		Message: fmt.Sprintf("Required dependency '%s' is not active", dependency),
	}
}

// NewDependentsActiveError reports a deactivation blocked by active dependents.
func NewDependentsActiveError(id string, dependents []string) *DomainRuleError {
	return &DomainRuleError{
		Rule:    RuleDependents,
		ID:      id,
		Message: fmt.Sprintf("Cannot deactivate. The following plugins depend on this one: %s", strings.Join(dependents, ", ")),
	}
}

// NewTransitionError reports a transition not allowed from the current status.
func NewTransitionError(id, from, action string) *DomainRuleError {
	return &DomainRuleError{
		Rule:    RuleTransition,
		ID:      id,
		Message: fmt.Sprintf("Cannot %s plugin %s while it is %s", action, id, from),
	}
}

// SubscriberError records a failure raised by an event subscriber.
// Emitters never see it; the registry logs and counts it.
type SubscriberError struct {
	Event string
	Index int
	Owner string
	Err   error
}

// Error implements the error interface
func (e *SubscriberError) Error() string {
	if e.Owner != "" {
		return fmt.Sprintf("subscriber %d (%s) for event %s failed: %v", e.Index, e.Owner, e.Event, e.Err)
	}
	return fmt.Sprintf("subscriber %d for event %s failed: %v", e.Index, e.Event, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *SubscriberError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *SubscriberError) Is(target error) bool {
	return target == ErrSubscriber
}

// ConfigError represents a configuration error
type ConfigError struct {
	Component string
	Message   string
	Err       error
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("configuration error in %s: %s", e.Component, e.Message)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError
func NewConfigError(component, message string, err error) *ConfigError {
	return &ConfigError{
		Component: component,
		Message:   message,
		Err:       err,
	}
}

// IOError represents an error during I/O operations
type IOError struct {
	Operation string // "read", "write", "create", "delete", "open", "close"
	Path      string
	Message   string
	Err       error
}

// Error implements the error interface
func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("IO error during %s of %s: %s", e.Operation, e.Path, e.Message)
	}
	return fmt.Sprintf("IO error during %s: %s", e.Operation, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *IOError) Unwrap() error {
	return e.Err
}

// NewIOError creates a new IOError
func NewIOError(operation, path string, err error) *IOError {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &IOError{
		Operation: operation,
		Path:      path,
		Message:   message,
		Err:       err,
	}
}

// ResourceError represents an error during resource operations
type ResourceError struct {
	Operation string // "load", "save", "restore"
	Resource  string // "plugin store", "snapshot", "config"
	ID        string
	Message   string
	Err       error
}

// Error implements the error interface
func (e *ResourceError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("failed to %s %s %s: %s", e.Operation, e.Resource, e.ID, e.Message)
	}
	return fmt.Sprintf("failed to %s %s: %s", e.Operation, e.Resource, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ResourceError) Unwrap() error {
	return e.Err
}

// NewResourceError creates a new ResourceError
func NewResourceError(operation, resource, id string, err error) *ResourceError {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &ResourceError{
		Operation: operation,
		Resource:  resource,
		ID:        id,
		Message:   message,
		Err:       err,
	}
}

// DetailedError is implemented by errors that carry a structured payload,
// such as per-field validation failures, for API clients.
type DetailedError interface {
	error
	Details() any
}

// Details returns the payload of the first DetailedError in err's chain.
func Details(err error) (any, bool) {
	var de DetailedError
	if errors.As(err, &de) {
		return de.Details(), true
	}
	return nil, false
}

// Helper functions for error checking

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if an error is an already exists error
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsDomainRule checks if an error is a lifecycle rule violation
func IsDomainRule(err error) bool {
	return errors.Is(err, ErrDomainRule)
}

// IsRule checks if an error is a DomainRuleError for the given rule
func IsRule(err error, rule Rule) bool {
	var de *DomainRuleError
	if errors.As(err, &de) {
		return de.Rule == rule
	}
	return false
}

// Helper wrapping functions for common patterns

// WrapValidation wraps an error as a ValidationError
func WrapValidation(field string, err error) error {
	if err == nil {
		return nil
	}
	return &ValidationError{Field: field, Message: err.Error()}
}

// WrapIO wraps an error as an IOError
func WrapIO(operation, path string, err error) error {
	if err == nil {
		return nil
	}
	return NewIOError(operation, path, err)
}

// WrapResource wraps an error as a ResourceError
func WrapResource(operation, resource, id string, err error) error {
	if err == nil {
		return nil
	}
	return NewResourceError(operation, resource, id, err)
}

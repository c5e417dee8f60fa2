package apperrors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestValidation(t *testing.T) {
	t.Parallel()
	err := Validation("name", "job name is required")

	if !errors.Is(err, ErrValidation) {
		t.Error("expected error to match ErrValidation")
	}
	if err.Error() != "job name is required" {
		t.Errorf("expected message 'job name is required', got %q", err.Error())
	}

	var appErr *Error
	if !errors.As(err, &appErr) {
		t.Fatal("expected error to be *Error")
	}
	if appErr.Field != "name" {
		t.Errorf("expected field 'name', got %q", appErr.Field)
	}
}

func TestNotFound(t *testing.T) {
	t.Parallel()
	err := NotFound("job", "42")

	if !errors.Is(err, ErrNotFound) {
		t.Error("expected error to match ErrNotFound")
	}
	if err.Error() != "job 42 not found" {
		t.Errorf("expected message 'job 42 not found', got %q", err.Error())
	}
}

func TestConflict(t *testing.T) {
	t.Parallel()
	err := Conflict("job", "7", "transition in progress")

	if !errors.Is(err, ErrConflict) {
		t.Error("expected error to match ErrConflict")
	}
	if err.Error() != "job 7: transition in progress" {
		t.Errorf("unexpected message: %q", err.Error())
	}
}

func TestInternal(t *testing.T) {
	t.Parallel()
	cause := fmt.Errorf("boom")
	err := Internal("store.migrate", cause)

	if !errors.Is(err, ErrInternal) {
		t.Error("expected error to match ErrInternal")
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause to be reachable through errors.Is")
	}
	if err.Error() != "store.migrate: boom" {
		t.Errorf("unexpected message: %q", err.Error())
	}
}

func TestRuntimeUnavailable_PreservesDeadline(t *testing.T) {
	t.Parallel()
	err := RuntimeUnavailable("docker.containerStop", context.DeadlineExceeded)

	if !errors.Is(err, ErrRuntimeUnavailable) {
		t.Error("expected error to match ErrRuntimeUnavailable")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("expected deadline to be reachable through errors.Is")
	}

	var appErr *Error
	if !errors.As(err, &appErr) {
		t.Fatal("expected error to be *Error")
	}
	if appErr.Op != "docker.containerStop" {
		t.Errorf("expected op 'docker.containerStop', got %q", appErr.Op)
	}
}

func TestInvalidReference_UnknownID(t *testing.T) {
	t.Parallel()
	err := InvalidReference("job", "42", "unknown job id", NotFound("job", "42"))

	if !errors.Is(err, ErrInvalidReference) {
		t.Error("expected error to match ErrInvalidReference")
	}
	if !errors.Is(err, ErrNotFound) {
		t.Error("expected wrapped NotFound to match")
	}
	if got := HTTPStatus(err); got != http.StatusNotFound {
		t.Errorf("HTTPStatus() = %d, want %d", got, http.StatusNotFound)
	}
}

func TestContainerNotFound(t *testing.T) {
	t.Parallel()
	err := ContainerNotFound("docker.containerStart", "abc", fmt.Errorf("No such container"))

	if !errors.Is(err, ErrNotFound) {
		t.Error("expected error to match ErrNotFound")
	}
	if err.Error() != "container abc not found" {
		t.Errorf("unexpected message: %q", err.Error())
	}
}

func TestHTTPStatusAndCode(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"validation", Validation("name", "required"), http.StatusBadRequest, "validation"},
		{"not found", NotFound("job", "123"), http.StatusNotFound, "not_found"},
		{"conflict", Conflict("job", "123", "locked"), http.StatusConflict, "conflict"},
		{"no container", InvalidReference("job", "1", "no container", nil), http.StatusConflict, "invalid_reference"},
		{"container gone", ContainerNotFound("stop", "abc", fmt.Errorf("gone")), http.StatusNotFound, "not_found"},
		{"creation rejected", CreationRejected("op", fmt.Errorf("no image")), http.StatusUnprocessableEntity, "creation_rejected"},
		{"runtime unavailable", RuntimeUnavailable("op", fmt.Errorf("dial")), http.StatusServiceUnavailable, "runtime_unavailable"},
		{"persistence", Persistence("op", fmt.Errorf("db down")), http.StatusInternalServerError, "persistence"},
		{"internal", Internal("op", fmt.Errorf("fail")), http.StatusInternalServerError, "internal"},
		{"sentinel validation", ErrValidation, http.StatusBadRequest, "validation"},
		{"wrapped validation", fmt.Errorf("wrap: %w", Validation("f", "m")), http.StatusBadRequest, "validation"},
		{"unknown error", fmt.Errorf("unknown"), http.StatusInternalServerError, "internal"},
		{"nil error", nil, http.StatusInternalServerError, "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := HTTPStatus(tt.err); got != tt.wantStatus {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.wantStatus)
			}
			if got := Code(tt.err); got != tt.wantCode {
				t.Errorf("Code() = %q, want %q", got, tt.wantCode)
			}
		})
	}
}

func TestErrorsIsWithWrapping(t *testing.T) {
	t.Parallel()
	original := Persistence("store.save", fmt.Errorf("connection reset"))
	wrapped := fmt.Errorf("service error: %w", original)
	doubleWrapped := fmt.Errorf("handler error: %w", wrapped)

	if !errors.Is(doubleWrapped, ErrPersistence) {
		t.Error("expected errors.Is to find ErrPersistence through multiple wraps")
	}
}

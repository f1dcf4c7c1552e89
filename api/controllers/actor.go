package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/hilife/servicereport-backend/api/middleware"
	"github.com/hilife/servicereport-backend/internal/reports"
	"github.com/hilife/servicereport-backend/pkg/enums"
	pkgerrors "github.com/hilife/servicereport-backend/pkg/errors"
)

func callerID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	return id, nil
}

func reportActor(r *http.Request) (reports.Actor, error) {
	id, err := callerID(r)
	if err != nil {
		return reports.Actor{}, err
	}
	role, err := enums.ParseUserRole(middleware.RoleFromContext(r.Context()))
	if err != nil {
		return reports.Actor{}, pkgerrors.Wrap(pkgerrors.CodeForbidden, err, "unknown role")
	}
	return reports.Actor{
		UserID: id,
		Email:  middleware.EmailFromContext(r.Context()),
		Role:   role,
	}, nil
}

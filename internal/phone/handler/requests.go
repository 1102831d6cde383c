package handler

import (
	"github.com/google/uuid"

	"phones/internal/phone/models"
)

type listRequest struct {
	Limit   int                  `json:"limit"`
	Offset  int                  `json:"offset"`
	OrderBy []models.OrderBy     `json:"orderBy"`
	Where   []models.WhereClause `json:"where"`
	Search  string               `json:"search"`
}

func (req listRequest) toFilter() models.ListFilter {
	return models.ListFilter{
		Limit:   req.Limit,
		Offset:  req.Offset,
		OrderBy: req.OrderBy,
		Where:   req.Where,
		Search:  req.Search,
	}
}

// deleteRequest accepts a singular id, a list, or both; they are merged.
type deleteRequest struct {
	ID  *uuid.UUID  `json:"id,omitempty"`
	IDs []uuid.UUID `json:"ids,omitempty"`
}

func (req deleteRequest) allIDs() []uuid.UUID {
	ids := append([]uuid.UUID{}, req.IDs...)
	if req.ID != nil {
		ids = append(ids, *req.ID)
	}
	return ids
}

type replaceRequest struct {
	Input []models.PhoneInput `json:"input"`
}

type rebaseTypesRequest struct {
	Types []string `json:"types"`
}

type idResponse struct {
	ID uuid.UUID `json:"id"`
}

type entityPhonesResponse struct {
	Nodes      []models.PhoneView `json:"nodes"`
	TotalCount int                `json:"totalCount"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

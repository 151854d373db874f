package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"backoffice-service/internal/models"
	"backoffice-service/internal/store"
	"backoffice-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ClientRequest is the body of a client create or update
type ClientRequest struct {
	FullName     string `json:"fullName"`
	Number       string `json:"number"`
	Email        string `json:"email"`
	FiscalNumber string `json:"fiscalNumber"`
}

// ClientPage is one page of clients ordered by name
type ClientPage struct {
	Clients []models.Client `json:"clients"`
	PageInfo
}

// ClientService manages the client directory
type ClientService struct {
	repo   store.ClientDirectory
	paging Paging
	logger *zap.Logger
}

// NewClientService creates a new client service
func NewClientService(repo store.ClientDirectory, paging Paging) *ClientService {
	if paging.DefaultLimit == 0 {
		paging = DefaultPaging
	}
	return &ClientService{repo: repo, paging: paging, logger: util.GetLogger()}
}

// CreateClient adds a client
func (s *ClientService) CreateClient(ctx context.Context, req *ClientRequest) (*models.Client, error) {
	ctx, span := util.StartSpan(ctx, "ClientService.CreateClient")
	defer span.End()

	c, err := validateClient(req)
	if err != nil {
		return nil, err
	}
	c.ID = uuid.New()

	if err := s.repo.CreateClient(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	s.logger.Info("Client created", zap.String("client_id", c.ID.String()))
	return c, nil
}

// GetClient retrieves a client by ID
func (s *ClientService) GetClient(ctx context.Context, id string) (*models.Client, error) {
	ctx, span := util.StartSpan(ctx, "ClientService.GetClient")
	defer span.End()

	clientID, err := parseEntityID("client", id)
	if err != nil {
		return nil, err
	}
	c, err := s.repo.GetClient(ctx, clientID)
	if err != nil {
		return nil, clientLookupError(clientID, err)
	}
	return c, nil
}

// UpdateClient replaces every field of a client
func (s *ClientService) UpdateClient(ctx context.Context, id string, req *ClientRequest) (*models.Client, error) {
	ctx, span := util.StartSpan(ctx, "ClientService.UpdateClient")
	defer span.End()

	clientID, err := parseEntityID("client", id)
	if err != nil {
		return nil, err
	}
	c, err := validateClient(req)
	if err != nil {
		return nil, err
	}
	c.ID = clientID

	if err := s.repo.UpdateClient(ctx, c); err != nil {
		return nil, clientLookupError(clientID, err)
	}

	s.logger.Info("Client updated", zap.String("client_id", clientID.String()))
	return c, nil
}

// DeleteClient removes a client. Its orders stay in the ledger.
func (s *ClientService) DeleteClient(ctx context.Context, id string) error {
	ctx, span := util.StartSpan(ctx, "ClientService.DeleteClient")
	defer span.End()

	clientID, err := parseEntityID("client", id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteClient(ctx, clientID); err != nil {
		return clientLookupError(clientID, err)
	}

	s.logger.Info("Client deleted", zap.String("client_id", clientID.String()))
	return nil
}

// ListClients returns one page of clients whose full name matches search
func (s *ClientService) ListClients(ctx context.Context, page, limit int, search string) (*ClientPage, error) {
	ctx, span := util.StartSpan(ctx, "ClientService.ListClients")
	defer span.End()

	if err := checkSearch(search); err != nil {
		return nil, err
	}
	page, limit, filter := s.paging.Normalize(page, limit, search)
	clients, total, err := s.repo.ListClients(ctx, filter)
	if err != nil {
		return nil, searchError("clients", search, err)
	}
	return &ClientPage{Clients: clients, PageInfo: newPageInfo(total, page, limit)}, nil
}

func validateClient(req *ClientRequest) (*models.Client, error) {
	c := &models.Client{
		FullName:     strings.TrimSpace(req.FullName),
		Number:       strings.TrimSpace(req.Number),
		Email:        strings.TrimSpace(req.Email),
		FiscalNumber: strings.TrimSpace(req.FiscalNumber),
	}
	if c.FullName == "" || c.FiscalNumber == "" {
		return nil, ValidationError(CodeValidation, "full name and fiscal number required")
	}
	return c, nil
}

func clientLookupError(id uuid.UUID, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return NotFoundError(CodeClientNotFound, "client %s not found", id).With("clientId", id)
	}
	return fmt.Errorf("failed to load client: %w", err)
}

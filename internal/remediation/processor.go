package remediation

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrValidation marks remediation messages missing required fields. The
// queue worker swallows it; the message is lost, not retried.
var ErrValidation = errors.New("remediation validation failed")

const (
	actionDelete = "delete"
	actionUpdate = "update"
)

type deleteRequest struct {
	ID         string `validate:"required"`
	DomainName string `validate:"required"`
	Message    string
}

type updateRequest struct {
	ID         string `validate:"required"`
	DomainName string `validate:"required"`
	FieldName  string `validate:"required"`
	FromValue  string `validate:"required"`
	ToValue    string `validate:"required"`
}

// TableMutator is the slice of the materializer remediation drives.
type TableMutator interface {
	ArchiveAndMarkDeleted(ctx context.Context, domain string, id string, message string) error
	CASUpdateColumn(ctx context.Context, domain string, column string, id string, fromValue string, toValue string) error
}

// Processor applies remediation actions to the materialized domain tables.
type Processor struct {
	mat      TableMutator
	validate *validator.Validate
	log      *zap.SugaredLogger
}

func NewProcessor(mat TableMutator) *Processor {
	return &Processor{
		mat:      mat,
		validate: validator.New(),
		log:      zap.S().Named("remediation"),
	}
}

// Process dispatches on the message's action. delete archives and
// soft-deletes the referenced row; update is a compare-and-swap on one
// column. Any other action is a no-op, not an error.
func (p *Processor) Process(ctx context.Context, data map[string]any) error {
	switch stringField(data, "action") {
	case actionDelete:
		return p.processDelete(ctx, data)
	case actionUpdate:
		return p.processUpdate(ctx, data)
	default:
		p.log.Infow("unrecognized remediation action, ignoring", "action", data["action"])
		return nil
	}
}

func (p *Processor) processDelete(ctx context.Context, data map[string]any) error {
	req := deleteRequest{
		ID:         stringField(data, "id"),
		DomainName: stringField(data, "domain_name"),
		Message:    stringField(data, "message"),
	}
	if err := p.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: delete: %s", ErrValidation, err)
	}

	if err := p.mat.ArchiveAndMarkDeleted(ctx, req.DomainName, req.ID, req.Message); err != nil {
		return errors.Wrap(err, "processing delete remediation")
	}
	return nil
}

func (p *Processor) processUpdate(ctx context.Context, data map[string]any) error {
	req := updateRequest{
		ID:         stringField(data, "id"),
		DomainName: stringField(data, "domain_name"),
		FieldName:  stringField(data, "field_name"),
		FromValue:  stringField(data, "from_value"),
		ToValue:    stringField(data, "to_value"),
	}
	if err := p.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: update: %s", ErrValidation, err)
	}

	if err := p.mat.CASUpdateColumn(ctx, req.DomainName, req.FieldName, req.ID, req.FromValue, req.ToValue); err != nil {
		return errors.Wrap(err, "processing update remediation")
	}
	return nil
}

func stringField(m map[string]any, key string) string {
	v, found := m[key]
	if !found || v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

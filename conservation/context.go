package conservation

import (
	"sync"

	log "github.com/sirupsen/logrus"
	pb "go.manifold.dev/atlas/protocol"
)

// Context owns one conservation domain and one witness of a Service.
// Read-only methods of Context are safe for concurrent use; Close may be
// called concurrently with them, after which they report failure.
type Context struct {
	svc         Service
	budgetClass uint8
	length      int

	mu      sync.RWMutex
	domain  DomainHandle
	witness WitnessHandle
	closed  bool
}

// NewContext creates a domain sized to |data| (at least pb.PageSize
// bytes) of |budgetClass| modulo 96, and a witness over |data|. If the
// witness cannot be created, the domain is destroyed before returning.
func NewContext(svc Service, data []byte, budgetClass uint8) (*Context, error) {
	var size = len(data)
	if size < pb.PageSize {
		size = pb.PageSize
	}
	budgetClass %= pb.Modulus

	var domain, err = svc.DomainCreate(size, budgetClass)
	if err != nil {
		return nil, pb.WrapError(pb.LayerIntegrationError, err, "creating conservation domain")
	}
	witness, err := svc.WitnessGenerate(data)
	if err != nil {
		svc.DomainDestroy(domain)
		return nil, pb.WrapError(pb.LayerIntegrationError, err, "generating conservation witness")
	}

	log.WithFields(log.Fields{
		"domain":      domain,
		"witness":     witness,
		"budgetClass": budgetClass,
		"size":        size,
	}).Debug("created conservation context")

	return &Context{
		svc:         svc,
		budgetClass: budgetClass,
		length:      len(data),
		domain:      domain,
		witness:     witness,
	}, nil
}

// Service of the Context.
func (c *Context) Service() Service { return c.svc }

// BudgetClass of the Context's domain.
func (c *Context) BudgetClass() uint8 { return c.budgetClass }

// Len returns the length of the data witnessed by the Context.
func (c *Context) Len() int { return c.length }

// IsOpen returns whether the Context has not yet been closed.
func (c *Context) IsOpen() bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed
}

// VerifyDomain returns whether the Context is open and its domain passes
// the Service integrity check.
func (c *Context) VerifyDomain() bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed && c.svc.DomainVerify(c.domain)
}

// VerifyData returns whether the Context is open and its witness attests to |data|.
func (c *Context) VerifyData(data []byte) bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed && c.svc.WitnessVerify(c.witness, data)
}

// Close destroys the Context's witness and domain. Close is idempotent.
func (c *Context) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.svc.WitnessDestroy(c.witness)
	c.svc.DomainDestroy(c.domain)
	c.closed, c.witness, c.domain = true, 0, 0
	return nil
}

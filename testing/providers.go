package testing

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/app/services"
	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/models"
	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/utils"
)

// FakeProvider is a scriptable services.PaymentProvider. Invoices start pending.
type FakeProvider struct {
	name models.PaymentProvider

	mu        sync.Mutex
	seq       int64
	invoices  map[string]services.Invoice
	failures  map[string]error
	lookups   map[string]int
	CreateErr error
}

// NewFakeProvider creates a provider reporting name
func NewFakeProvider(name models.PaymentProvider) *FakeProvider {
	return &FakeProvider{
		name:     name,
		seq:      1000,
		invoices: make(map[string]services.Invoice),
		failures: make(map[string]error),
		lookups:  make(map[string]int),
	}
}

func (p *FakeProvider) Name() models.PaymentProvider { return p.name }

func (p *FakeProvider) CreateInvoice(ctx context.Context, in services.CreateInvoiceInput) (*services.Invoice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.CreateErr != nil {
		return nil, p.CreateErr
	}
	p.seq++
	id := strconv.FormatInt(p.seq, 10)
	expiresAt := utils.UTCNowAdd(time.Hour)
	inv := services.Invoice{
		ID:        id,
		URL:       fmt.Sprintf("https://pay.example.com/%s/%s", p.name, id),
		Amount:    in.Amount,
		Status:    services.InvoiceStatusPending,
		ExpiresAt: &expiresAt,
	}
	p.invoices[id] = inv
	return &inv, nil
}

func (p *FakeProvider) CheckStatus(ctx context.Context, invoiceID string) (services.InvoiceStatus, error) {
	inv, err := p.GetInvoice(ctx, invoiceID)
	if err != nil {
		return services.InvoiceStatusPending, err
	}
	return inv.Status, nil
}

func (p *FakeProvider) GetInvoice(ctx context.Context, invoiceID string) (*services.Invoice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lookups[invoiceID]++
	if err := p.failures[invoiceID]; err != nil {
		return nil, err
	}
	inv, ok := p.invoices[invoiceID]
	if !ok {
		return nil, &services.PaymentError{Provider: p.name, Op: "get_invoice", Err: fmt.Errorf("invoice %s not found", invoiceID)}
	}
	return &inv, nil
}

// Put registers or replaces an invoice
func (p *FakeProvider) Put(inv services.Invoice) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.invoices[inv.ID] = inv
}

// SetStatus changes the status reported for invoiceID
func (p *FakeProvider) SetStatus(invoiceID string, status services.InvoiceStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	inv := p.invoices[invoiceID]
	inv.ID = invoiceID
	inv.Status = status
	p.invoices[invoiceID] = inv
}

// Fail makes every lookup of invoiceID return err; nil clears it
func (p *FakeProvider) Fail(invoiceID string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[invoiceID] = err
}

// Lookups returns how many times invoiceID was fetched
func (p *FakeProvider) Lookups(invoiceID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lookups[invoiceID]
}

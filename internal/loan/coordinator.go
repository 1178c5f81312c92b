package loan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nekogravitycat/bookshare-backend/internal/clock"
	"github.com/nekogravitycat/bookshare-backend/internal/db"
	"github.com/nekogravitycat/bookshare-backend/internal/ledger"
	"github.com/nekogravitycat/bookshare-backend/internal/lock"
	"github.com/nekogravitycat/bookshare-backend/internal/notification"
	"github.com/nekogravitycat/bookshare-backend/internal/pkg/apperror"
	"github.com/nekogravitycat/bookshare-backend/internal/reservation"
	"github.com/nekogravitycat/bookshare-backend/internal/resource"
	"github.com/nekogravitycat/bookshare-backend/internal/user"
)

const (
	defaultLockWait     = 5 * time.Second
	defaultLockHold     = 10 * time.Second
	defaultStoreTimeout = 3 * time.Second

	tracerName = "github.com/nekogravitycat/bookshare-backend/internal/loan"
)

// UserLookup resolves the users named in a command.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*user.User, error)
}

// Deps are the collaborators of a Coordinator.
type Deps struct {
	Resources    resource.Repository
	Users        UserLookup
	Ledger       ledger.Repository
	Reservations reservation.Store
	Locker       lock.Locker
	Tx           db.TxRunner
	Notifier     notification.Notifier
}

// Coordinator drives resources through the loan lifecycle. Approve and
// confirm are serialized per resource by a named lock; every action commits
// its resource and ledger changes in one transaction.
type Coordinator struct {
	resources    resource.Repository
	users        UserLookup
	ledger       ledger.Repository
	reservations reservation.Store
	locker       lock.Locker
	tx           db.TxRunner
	notifier     notification.Notifier

	clock  clock.Clock
	logger *slog.Logger
	tracer trace.Tracer

	lockWait       time.Duration
	lockHold       time.Duration
	reservationTTL time.Duration
	storeTimeout   time.Duration
}

type Option func(*Coordinator)

// WithLockWait bounds how long approve and confirm wait for the resource lock.
func WithLockWait(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.lockWait = d
		}
	}
}

// WithLockHold bounds how long a crashed holder can keep the resource lock.
func WithLockHold(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.lockHold = d
		}
	}
}

// WithReservationTTL sets the lease of new loan requests.
func WithReservationTTL(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.reservationTTL = d
		}
	}
}

// WithStoreTimeout bounds each reservation store round trip.
func WithStoreTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.storeTimeout = d
		}
	}
}

func WithClock(clk clock.Clock) Option {
	return func(c *Coordinator) {
		if clk != nil {
			c.clock = clk
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(c *Coordinator) {
		if tracer != nil {
			c.tracer = tracer
		}
	}
}

func NewCoordinator(deps Deps, opts ...Option) *Coordinator {
	c := &Coordinator{
		resources:      deps.Resources,
		users:          deps.Users,
		ledger:         deps.Ledger,
		reservations:   deps.Reservations,
		locker:         deps.Locker,
		tx:             deps.Tx,
		notifier:       deps.Notifier,
		clock:          clock.NewSystem(),
		logger:         slog.Default(),
		tracer:         otel.Tracer(tracerName),
		lockWait:       defaultLockWait,
		lockHold:       defaultLockHold,
		reservationTTL: reservation.DefaultTTL,
		storeTimeout:   defaultStoreTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// outgoing is a notification held back until the action has committed and
// the lock is released.
type outgoing struct {
	receiverID string
	event      notification.Event
}

// ProcessAction performs cmd. Errors are synchronous and nothing is retried
// internally apart from waiting for the resource lock.
func (c *Coordinator) ProcessAction(ctx context.Context, cmd Command) (*Result, error) {
	ctx, span := c.tracer.Start(ctx, "loan."+strings.ToLower(cmd.Action.String()),
		trace.WithAttributes(
			attribute.String("loan.action", cmd.Action.String()),
			attribute.String("loan.resource_id", cmd.ResourceID),
			attribute.String("loan.requester_id", cmd.RequesterID),
		))
	defer span.End()

	result, out, err := c.dispatch(ctx, cmd)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logFailure(ctx, cmd, err)
		return nil, err
	}

	c.logger.InfoContext(ctx, "loan action processed",
		"action", cmd.Action.String(),
		"resource_id", cmd.ResourceID,
		"requester_id", cmd.RequesterID,
		"status", result.Resource.Status,
	)
	if out != nil {
		c.emit(ctx, *out)
	}
	return result, nil
}

func (c *Coordinator) dispatch(ctx context.Context, cmd Command) (*Result, *outgoing, error) {
	if !cmd.Action.Valid() {
		return nil, nil, ErrUnknownAction
	}
	if strings.TrimSpace(cmd.ResourceID) == "" {
		return nil, nil, ErrInvalidInput.With(errors.New("resource id is required"))
	}

	res, err := c.resources.GetByID(ctx, cmd.ResourceID)
	if err != nil {
		return nil, nil, mapResourceErr(err)
	}

	var owner *user.User
	if cmd.Action.OwnerInitiated() {
		if cmd.OwnerID == "" {
			return nil, nil, ErrAccessDenied
		}
		if owner, err = c.lookupUser(ctx, cmd.OwnerID); err != nil {
			return nil, nil, err
		}
		if !res.IsOwnedBy(cmd.OwnerID) {
			return nil, nil, ErrAccessDenied
		}
	}

	var requester *user.User
	if cmd.RequesterID != "" {
		if requester, err = c.lookupUser(ctx, cmd.RequesterID); err != nil {
			return nil, nil, err
		}
	} else if needsRequester(cmd.Action) {
		return nil, nil, ErrInvalidInput.With(errors.New("requester id is required"))
	}

	switch cmd.Action {
	case ActionRequestLoan:
		return c.requestLoan(ctx, res, requester, cmd)
	case ActionApproveLoan:
		return c.approveLoan(ctx, res, owner, requester, cmd)
	case ActionCancelLoan, ActionRejectLoan:
		return c.cancelOrRejectLoan(ctx, res, owner, requester, cmd)
	case ActionConfirmLoan:
		return c.confirmLoan(ctx, res, requester, cmd)
	case ActionVoidLoan:
		return c.voidLoan(ctx, res, owner, cmd)
	case ActionRequestReturn:
		return c.changeReturnRequest(ctx, res, owner, cmd, (*resource.Resource).RequestReturn, notification.TypeReturnRequest)
	case ActionCancelReturn:
		return c.changeReturnRequest(ctx, res, owner, cmd, (*resource.Resource).CancelReturnRequest, notification.TypeReturnRequestCancel)
	case ActionConfirmReturn:
		return c.confirmReturn(ctx, res, owner, cmd)
	}
	return nil, nil, ErrUnknownAction
}

func needsRequester(a Action) bool {
	switch a {
	case ActionRequestLoan, ActionApproveLoan, ActionCancelLoan, ActionRejectLoan, ActionConfirmLoan:
		return true
	}
	return false
}

func (c *Coordinator) requestLoan(ctx context.Context, res *resource.Resource, requester *user.User, cmd Command) (*Result, *outgoing, error) {
	if res.IsOwnedBy(requester.ID) {
		return nil, nil, ErrAccessDenied
	}
	if err := res.RequireAvailable(); err != nil {
		return nil, nil, err
	}

	days := cmd.LoanDays
	if days == 0 {
		days = DefaultLoanDays
	}
	if days < 1 {
		return nil, nil, ErrInvalidInput.With(ledger.ErrInvalidLoanDays)
	}

	r := reservation.Reservation{
		RequesterName: requester.Name(),
		LoanDays:      days,
		CreatedAt:     c.clock.Now(),
	}
	sctx, cancel := c.storeCtx(ctx)
	defer cancel()
	if err := c.reservations.Put(sctx, res.ID, requester.ID, r, c.reservationTTL); err != nil {
		return nil, nil, storeErr(err)
	}

	out := c.note(res.OwnerID, notification.TypeLoanRequest, res, requester, cmd.Comment, days)
	return &Result{Resource: res}, out, nil
}

func (c *Coordinator) approveLoan(ctx context.Context, res *resource.Resource, owner, requester *user.User, cmd Command) (*Result, *outgoing, error) {
	lk, err := c.acquire(ctx, res.ID)
	if err != nil {
		return nil, nil, err
	}
	defer c.release(ctx, lk)

	sctx, cancel := c.storeCtx(ctx)
	_, ok, err := c.reservations.Get(sctx, res.ID, requester.ID)
	cancel()
	if err != nil {
		return nil, nil, storeErr(err)
	}
	if !ok {
		return nil, nil, ErrStaleRequest
	}

	var (
		removed map[string]reservation.Reservation
		current *resource.Resource
		entry   *ledger.Entry
	)
	err = c.tx.WithTx(ctx, func(txCtx context.Context) error {
		var err error
		if current, err = c.loadForUpdate(txCtx, res.ID); err != nil {
			return err
		}
		prev := current.Status
		if err := current.ApproveLoan(); err != nil {
			return err
		}
		if err := c.resources.UpdateState(txCtx, current, prev); err != nil {
			return err
		}

		sctx, cancel := c.storeCtx(txCtx)
		defer cancel()
		if removed, err = c.reservations.RemoveAll(sctx, res.ID); err != nil {
			return storeErr(err)
		}
		winner, ok := removed[requester.ID]
		if !ok {
			// Expired between the check above and the purge.
			return ErrStaleRequest
		}

		now := c.clock.Now()
		if entry, err = ledger.NewPending(res.ID, requester.ID, winner.LoanDays, now); err != nil {
			return err
		}
		entries := []*ledger.Entry{entry}
		for id, r := range removed {
			if id == requester.ID {
				continue
			}
			entries = append(entries, ledger.NewDecided(res.ID, id, r.LoanDays, ledger.OutcomePreoccupied, now))
		}
		return c.ledger.SaveAll(txCtx, entries)
	})
	if err != nil {
		if len(removed) > 0 {
			c.restoreReservations(ctx, res.ID, removed)
		}
		return nil, nil, err
	}

	out := c.note(requester.ID, notification.TypeLoanApprove, current, owner, cmd.Comment, entry.LoanDays)
	return &Result{Resource: current, Entry: entry}, out, nil
}

func (c *Coordinator) cancelOrRejectLoan(ctx context.Context, res *resource.Resource, owner, requester *user.User, cmd Command) (*Result, *outgoing, error) {
	reject := cmd.Action == ActionRejectLoan
	verb := "cancel loan"
	if reject {
		verb = "reject loan"
	}
	if err := res.RequireLending(verb); err != nil {
		return nil, nil, err
	}

	sctx, cancel := c.storeCtx(ctx)
	removed, ok, err := c.reservations.Remove(sctx, res.ID, requester.ID)
	cancel()
	if err != nil {
		return nil, nil, storeErr(err)
	}
	if !ok {
		return nil, nil, ErrStaleRequest
	}

	outcome := ledger.OutcomeCanceled
	if reject {
		outcome = ledger.OutcomeRejected
	}
	entry := ledger.NewDecided(res.ID, requester.ID, removed.LoanDays, outcome, c.clock.Now())

	err = c.tx.WithTx(ctx, func(txCtx context.Context) error {
		return c.ledger.Save(txCtx, entry)
	})
	if err != nil {
		c.restoreReservations(ctx, res.ID, map[string]reservation.Reservation{requester.ID: removed})
		return nil, nil, err
	}

	result := &Result{Resource: res, Entry: entry}
	if !reject {
		return result, nil, nil
	}
	return result, c.note(requester.ID, notification.TypeLoanReject, res, owner, cmd.Comment, removed.LoanDays), nil
}

func (c *Coordinator) confirmLoan(ctx context.Context, res *resource.Resource, requester *user.User, cmd Command) (*Result, *outgoing, error) {
	// Only the approved requester may confirm.
	if _, err := c.findPendingFor(ctx, res.ID, requester.ID); err != nil {
		return nil, nil, err
	}

	lk, err := c.acquire(ctx, res.ID)
	if err != nil {
		return nil, nil, err
	}
	defer c.release(ctx, lk)

	var (
		current *resource.Resource
		entry   *ledger.Entry
	)
	err = c.tx.WithTx(ctx, func(txCtx context.Context) error {
		var err error
		if current, err = c.loadForUpdate(txCtx, res.ID); err != nil {
			return err
		}
		if entry, err = c.findPendingFor(txCtx, res.ID, requester.ID); err != nil {
			return err
		}

		prev := current.Status
		if err := current.ConfirmLoan(requester.ID); err != nil {
			return err
		}
		if err := entry.ConfirmLoan(c.clock.Now()); err != nil {
			return err
		}
		if err := c.resources.UpdateState(txCtx, current, prev); err != nil {
			return err
		}
		return c.ledger.Update(txCtx, entry, nil)
	})
	if err != nil {
		return nil, nil, err
	}

	out := c.note(res.OwnerID, notification.TypeLoanConfirm, current, requester, cmd.Comment, entry.LoanDays)
	return &Result{Resource: current, Entry: entry}, out, nil
}

func (c *Coordinator) findPendingFor(ctx context.Context, resourceID, requesterID string) (*ledger.Entry, error) {
	entry, err := c.ledger.FindPendingByRequester(ctx, resourceID, requesterID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return nil, ErrAccessDenied
		}
		return nil, err
	}
	return entry, nil
}

func (c *Coordinator) voidLoan(ctx context.Context, res *resource.Resource, owner *user.User, cmd Command) (*Result, *outgoing, error) {
	var (
		current *resource.Resource
		entry   *ledger.Entry
	)
	err := c.tx.WithTx(ctx, func(txCtx context.Context) error {
		var err error
		if current, err = c.loadForUpdate(txCtx, res.ID); err != nil {
			return err
		}
		prev := current.Status
		if err := current.VoidLoan(); err != nil {
			return err
		}

		if cmd.RequesterID != "" {
			entry, err = c.ledger.FindPendingByRequester(txCtx, res.ID, cmd.RequesterID)
		} else {
			entry, err = c.ledger.FindOpenByResource(txCtx, res.ID)
		}
		if err != nil {
			if errors.Is(err, ledger.ErrNotFound) {
				return ErrLoanNotFound
			}
			return err
		}
		if err := entry.Void(c.clock.Now()); err != nil {
			return err
		}

		if err := c.resources.UpdateState(txCtx, current, prev); err != nil {
			return err
		}
		return c.ledger.Update(txCtx, entry, nil)
	})
	if err != nil {
		return nil, nil, err
	}

	out := c.note(entry.RequesterID, notification.TypeLoanVoid, current, owner, cmd.Comment, entry.LoanDays)
	return &Result{Resource: current, Entry: entry}, out, nil
}

// changeReturnRequest runs requestReturn or cancelReturnRequest; both only
// touch the resource.
func (c *Coordinator) changeReturnRequest(
	ctx context.Context,
	res *resource.Resource,
	owner *user.User,
	cmd Command,
	transition func(*resource.Resource) error,
	typ notification.Type,
) (*Result, *outgoing, error) {
	var (
		current *resource.Resource
		holder  string
	)
	err := c.tx.WithTx(ctx, func(txCtx context.Context) error {
		var err error
		if current, err = c.loadForUpdate(txCtx, res.ID); err != nil {
			return err
		}
		holder = current.Holder()
		prev := current.Status
		if err := transition(current); err != nil {
			return err
		}
		if cmd.RequesterID != "" && cmd.RequesterID != holder {
			return ErrAccessDenied
		}
		return c.resources.UpdateState(txCtx, current, prev)
	})
	if err != nil {
		return nil, nil, err
	}

	out := c.note(holder, typ, current, owner, cmd.Comment, 0)
	return &Result{Resource: current}, out, nil
}

func (c *Coordinator) confirmReturn(ctx context.Context, res *resource.Resource, owner *user.User, cmd Command) (*Result, *outgoing, error) {
	var (
		current *resource.Resource
		entry   *ledger.Entry
		holder  string
	)
	err := c.tx.WithTx(ctx, func(txCtx context.Context) error {
		var err error
		if current, err = c.loadForUpdate(txCtx, res.ID); err != nil {
			return err
		}
		holder = current.Holder()
		prev := current.Status
		if err := current.ConfirmReturn(); err != nil {
			return err
		}
		if cmd.RequesterID != "" && cmd.RequesterID != holder {
			return ErrAccessDenied
		}

		if entry, err = c.ledger.FindCurrentOccupant(txCtx, res.ID); err != nil {
			if errors.Is(err, ledger.ErrNotFound) {
				return ErrLoanNotFound
			}
			return err
		}
		if entry.RequesterID != holder {
			return ErrLoanNotFound.With(fmt.Errorf("loaned entry belongs to %s, holder is %s", entry.RequesterID, holder))
		}
		prevOutcome := ledger.OutcomeLoaned
		if err := entry.ConfirmReturn(c.clock.Now()); err != nil {
			return err
		}

		if err := c.resources.UpdateState(txCtx, current, prev); err != nil {
			return err
		}
		return c.ledger.Update(txCtx, entry, &prevOutcome)
	})
	if err != nil {
		return nil, nil, err
	}

	out := c.note(holder, notification.TypeReturnConfirm, current, owner, cmd.Comment, 0)
	return &Result{Resource: current, Entry: entry}, out, nil
}

// PendingRequests lists the live loan requests of a resource for its owner,
// oldest first.
func (c *Coordinator) PendingRequests(ctx context.Context, resourceID, callerID string) ([]reservation.Reservation, error) {
	res, err := c.resources.GetByID(ctx, resourceID)
	if err != nil {
		return nil, mapResourceErr(err)
	}
	if !res.IsOwnedBy(callerID) {
		return nil, ErrAccessDenied
	}

	sctx, cancel := c.storeCtx(ctx)
	defer cancel()
	all, err := c.reservations.List(sctx, resourceID)
	if err != nil {
		return nil, storeErr(err)
	}

	out := make([]reservation.Reservation, 0, len(all))
	for _, r := range all {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (c *Coordinator) loadForUpdate(ctx context.Context, resourceID string) (*resource.Resource, error) {
	res, err := c.resources.GetForUpdate(ctx, resourceID)
	if err != nil {
		return nil, mapResourceErr(err)
	}
	return res, nil
}

func (c *Coordinator) lookupUser(ctx context.Context, id string) (*user.User, error) {
	u, err := c.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

func (c *Coordinator) acquire(ctx context.Context, resourceID string) (*lock.Lock, error) {
	lk, err := c.locker.TryLock(ctx, lockKey(resourceID), c.lockWait, c.lockHold)
	if err != nil {
		return nil, ErrBusy.With(err)
	}
	return lk, nil
}

func (c *Coordinator) release(ctx context.Context, lk *lock.Lock) {
	uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.storeTimeout)
	defer cancel()
	if err := lk.Unlock(uctx); err != nil {
		c.logger.WarnContext(ctx, "failed to release resource lock", "key", lk.Key(), "error", err)
	}
}

// restoreReservations writes back requests removed by a transaction that
// then failed, keeping their remaining lease.
func (c *Coordinator) restoreReservations(ctx context.Context, resourceID string, removed map[string]reservation.Reservation) {
	now := c.clock.Now()
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.storeTimeout)
	defer cancel()

	for requesterID, r := range removed {
		ttl := r.Remaining(now)
		if ttl <= 0 {
			continue
		}
		if err := c.reservations.Put(rctx, resourceID, requesterID, r, ttl); err != nil {
			c.logger.ErrorContext(ctx, "failed to restore loan request",
				"resource_id", resourceID, "requester_id", requesterID, "error", err)
		}
	}
}

func (c *Coordinator) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.storeTimeout)
}

func (c *Coordinator) note(receiverID string, typ notification.Type, res *resource.Resource, sender *user.User, comment string, loanDays int) *outgoing {
	ev := notification.Event{
		Type:          typ,
		ResourceID:    res.ID,
		ResourceTitle: res.Title,
		SenderID:      sender.ID,
		SenderName:    sender.Name(),
		Comment:       comment,
		Timestamp:     c.clock.Now(),
	}
	if loanDays > 0 {
		ev.LoanDays = &loanDays
	}
	return &outgoing{receiverID: receiverID, event: ev}
}

func (c *Coordinator) emit(ctx context.Context, out outgoing) {
	if c.notifier == nil || out.receiverID == "" {
		return
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.storeTimeout)
	defer cancel()
	if err := c.notifier.Notify(nctx, out.receiverID, out.event); err != nil {
		c.logger.WarnContext(ctx, "failed to deliver notification",
			"type", out.event.Type, "receiver_id", out.receiverID, "error", err)
	}
}

func (c *Coordinator) logFailure(ctx context.Context, cmd Command, err error) {
	level := slog.LevelError
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		switch {
		case appErr.Retryable:
			level = slog.LevelWarn
		case appErr.Code < http.StatusInternalServerError:
			level = slog.LevelDebug
		}
	}
	c.logger.Log(ctx, level, "loan action failed",
		"action", cmd.Action.String(),
		"resource_id", cmd.ResourceID,
		"requester_id", cmd.RequesterID,
		"error", err,
	)
}

func lockKey(resourceID string) string {
	return "loan:resource:" + resourceID
}

func mapResourceErr(err error) error {
	if errors.Is(err, resource.ErrNotFound) {
		return ErrResourceNotFound
	}
	return err
}

func storeErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrBusy.With(err)
	}
	return fmt.Errorf("reservation store: %w", err)
}

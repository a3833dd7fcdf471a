package validation

import "context"

// Reconciler brings local state back in line with the server after a
// successful session.
type Reconciler interface {
	Reconcile(ctx context.Context) error
}

// Refresher re-fetches the authoritative dashboard snapshot.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// SelectionClearer drops the current key selection.
type SelectionClearer interface {
	ClearSelection()
}

// Trigger refreshes the dashboard and clears the selection.
type Trigger struct {
	Refresher Refresher
	Selection SelectionClearer
}

// Reconcile implements Reconciler. The selection is cleared even when the
// refresh fails.
func (t Trigger) Reconcile(ctx context.Context) error {
	var err error
	if t.Refresher != nil {
		err = t.Refresher.Refresh(ctx)
	}
	if t.Selection != nil {
		t.Selection.ClearSelection()
	}
	return err
}

// ReconcilerFunc adapts a function to Reconciler.
type ReconcilerFunc func(ctx context.Context) error

// Reconcile calls f.
func (f ReconcilerFunc) Reconcile(ctx context.Context) error { return f(ctx) }

// Reconcilers runs each reconciler in order and returns the first error.
type Reconcilers []Reconciler

// Reconcile implements Reconciler.
func (rs Reconcilers) Reconcile(ctx context.Context) error {
	var first error
	for _, r := range rs {
		if err := r.Reconcile(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}

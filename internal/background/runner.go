package background

import (
	"context"
	"log"
	"sync"
	"time"

	"registration-service/internal/config"
	"registration-service/internal/services"
)

// Runner manages the grace-window sweep job
type Runner struct {
	lifecycleSvc *services.LifecycleService
	config       config.BillingConfig
	stopCh       chan struct{}
	wg           sync.WaitGroup
	sweepTicker  *time.Ticker
}

// NewRunner creates a new background runner
func NewRunner(lifecycleSvc *services.LifecycleService, cfg config.BillingConfig) *Runner {
	return &Runner{
		lifecycleSvc: lifecycleSvc,
		config:       cfg,
		stopCh:       make(chan struct{}),
	}
}

// Start begins the background job processing
func (r *Runner) Start() {
	log.Println("Starting background job runner...")

	sweepInterval := time.Duration(r.config.SweepIntervalMins) * time.Minute
	r.sweepTicker = time.NewTicker(sweepInterval)
	log.Printf("Grace-window sweep job scheduled every %v", sweepInterval)

	r.wg.Add(1)
	go r.runSweepJob()

	log.Println("Background job runner started successfully")
}

// Stop gracefully stops all background jobs
func (r *Runner) Stop() {
	log.Println("Stopping background job runner...")
	close(r.stopCh)

	if r.sweepTicker != nil {
		r.sweepTicker.Stop()
	}

	// Wait for goroutines to finish with timeout
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Background job runner stopped gracefully")
	case <-time.After(30 * time.Second):
		log.Println("Background job runner stop timeout - forcing shutdown")
	}
}

// runSweepJob runs the grace-window sweep periodically
func (r *Runner) runSweepJob() {
	defer r.wg.Done()

	// Run immediately on start to catch businesses whose grace window
	// elapsed while the service was down.
	r.executeSweep()

	for {
		select {
		case <-r.stopCh:
			log.Println("Grace-window sweep job stopping...")
			return
		case <-r.sweepTicker.C:
			r.executeSweep()
		}
	}
}

// executeSweep moves canceled businesses past their grace window to
// pending_deletion and turns serving off.
func (r *Runner) executeSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	log.Println("Running grace-window sweep job...")
	swept, err := r.lifecycleSvc.SweepGraceWindows(ctx)
	if err != nil {
		log.Printf("Error in grace-window sweep job: %v", err)
	} else if swept > 0 {
		log.Printf("Grace-window sweep completed: %d businesses scheduled for deletion", swept)
	} else {
		log.Println("Grace-window sweep completed: nothing to sweep")
	}
}

// RunOnce runs the sweep once (for testing/manual trigger)
func (r *Runner) RunOnce(ctx context.Context) error {
	swept, err := r.lifecycleSvc.SweepGraceWindows(ctx)
	if err != nil {
		log.Printf("Sweep error: %v", err)
		return err
	}
	log.Printf("Swept %d businesses past their grace window", swept)
	return nil
}

// Copyright 2025 Catadex Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package indexer

import (
	"context"
	"log/slog"
	"time"
)

// RetryWithBackoff runs call up to maxAttempts times, doubling the pause
// between attempts starting from baseDelay. The pause honors ctx
// cancellation. When every attempt fails, the error from the final
// attempt is returned. op labels the operation in retry logs.
func RetryWithBackoff(ctx context.Context, logger *slog.Logger, op string, call func() error, maxAttempts int, baseDelay time.Duration) error {
	if maxAttempts <= 0 {
		return ErrInvalidMaxAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}

	delay := baseDelay
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := call()
		if err == nil {
			if attempt > 1 {
				logger.Debug("retry succeeded", "op", op, "attempt", attempt)
			}
			return nil
		}
		if attempt == maxAttempts {
			return err
		}

		logger.Debug("retrying after failure",
			"op", op, "attempt", attempt, "maxAttempts", maxAttempts,
			"delay", delay, "error", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
}

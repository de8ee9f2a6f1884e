// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package diskcache

import (
	"context"
	"fmt"
	"time"
)

// Run sweeps every SweepInterval until ctx is cancelled.
func (s *Store) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.logger.InfoContext(ctx, "disk cache sweeper started", "interval", s.interval, "cap_bytes", s.capBytes)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := s.Sweep(ctx)
			if err != nil {
				s.logger.ErrorContext(ctx, "disk cache sweep", "error", err)
				continue
			}
			if res.Removed > 0 || res.Skipped > 0 {
				s.logger.InfoContext(ctx, "disk cache swept",
					"removed", res.Removed, "freed", res.Freed, "skipped", res.Skipped, "total", res.Total)
			}
		}
	}
}

// Sweep enforces the byte cap once.
func (s *Store) Sweep(ctx context.Context) (SweepResult, error) {
	return s.enforceCap(ctx, s.capBytes)
}

type victim struct {
	key, path string
	size      int64
}

// enforceCap deletes entries in ascending last-access order until the
// indexed total is at or below capBytes. Entries being read are skipped;
// they become eligible again on the next sweep.
func (s *Store) enforceCap(ctx context.Context, capBytes int64) (SweepResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res SweepResult
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(size), 0) FROM entries`).Scan(&res.Total); err != nil {
		return res, fmt.Errorf("summing sizes: %w", err)
	}
	if res.Total <= capBytes {
		return res, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT key, path, size FROM entries ORDER BY last_access ASC, key ASC`)
	if err != nil {
		return res, fmt.Errorf("listing entries: %w", err)
	}
	var candidates []victim
	for rows.Next() {
		var v victim
		if err := rows.Scan(&v.key, &v.path, &v.size); err != nil {
			rows.Close()
			return res, fmt.Errorf("scanning entry: %w", err)
		}
		candidates = append(candidates, v)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return res, fmt.Errorf("listing entries: %w", err)
	}

	for _, v := range candidates {
		if res.Total <= capBytes {
			break
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if s.readers[v.key] > 0 {
			res.Skipped++
			continue
		}
		removeFile(s.abs(v.path))
		if _, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE key = ?`, v.key); err != nil {
			return res, fmt.Errorf("evicting %s: %w", v.key, err)
		}
		res.Removed++
		res.Freed += v.size
		res.Total -= v.size
	}
	return res, nil
}

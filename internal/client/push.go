package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"feedprobe/internal/feed"
	"feedprobe/internal/poll"
)

// PushPackageIfNotExists pushes pkg unless its identity already exists on the
// source, then polls until the entry becomes visible or the poll policy's
// deadline passes. The deadline is measured from the start of the push.
//
// A non-OK, non-404 existence check is not treated as absence: nothing is
// pushed and the failing lookup is reported in PackageResult. NuGet's own
// client pushes anyway in that case; skipping keeps a failing feed from
// being pushed to blind. A poll timeout is not an error; it shows as
// PackagePushSuccessfully=false.
func (c *Client) PushPackageIfNotExists(ctx context.Context, source feed.Source, pkg io.ReadSeeker) (ConditionalPushResult, error) {
	var result ConditionalPushResult
	if err := validateSource(source); err != nil {
		return result, err
	}

	id, err := c.readIdentity(pkg)
	if err != nil {
		return result, err
	}
	result.Identity = id

	log := c.log.With(zap.String("source", source.Key()), zap.Stringer("package", id))

	existing, err := c.lookupEntry(ctx, source, id)
	if err != nil {
		return result, err
	}
	result.PackageResult = existing

	switch {
	case existing.Found():
		result.PackageAlreadyExists = true
		log.Debug("package already exists, skipping push")
		return result, nil
	case !existing.NotFound():
		log.Warn("existence check failed, not pushing", zap.Int("status", existing.StatusCode()))
		return result, nil
	}

	start := time.Now()
	result.PushAttempted = true
	code, pushErr := c.protocol.PushPackage(ctx, source, pkg)
	result.TimeToPush = time.Since(start)
	result.PushStatusCode = code

	if pushErr != nil {
		pushErr = wrapProtocolError("push", pushErr)
		if isFatal(pushErr) {
			return result, pushErr
		}
		// The upload may still have landed, so the poll decides
		log.Warn("push got no response, polling anyway", zap.Error(pushErr))
	} else {
		log.Debug("package pushed",
			zap.Int("status", code),
			zap.Duration("elapsed", result.TimeToPush))
	}

	attempts := 0
	pollErr := c.poll.Run(ctx, start, func(ctx context.Context) (bool, error) {
		attempts++
		res, err := c.lookupEntry(ctx, source, id)
		if err != nil {
			if isFatal(err) {
				return false, err
			}
			log.Debug("poll attempt failed", zap.Int("attempt", attempts), zap.Error(err))
			return false, nil
		}

		result.PackageResult = res
		if res.NotFound() {
			return false, nil
		}
		if res.Found() {
			elapsed := time.Since(start)
			result.TimeToBeAvailable = &elapsed
		}
		return true, nil
	})

	switch {
	case pollErr == nil:
	case errors.Is(pollErr, poll.ErrTimeout):
		log.Warn("package did not become available before the deadline",
			zap.Int("attempts", attempts),
			zap.Duration("timeout", c.poll.Timeout))
	default:
		return result, pollErr
	}

	result.PackagePushSuccessfully = result.TimeToBeAvailable != nil
	if result.PackagePushSuccessfully {
		log.Debug("package available",
			zap.Int("attempts", attempts),
			zap.Duration("elapsed", *result.TimeToBeAvailable))
		return result, nil
	}

	return result, pushErr
}

// PushAndUnlistPackageIfNotExists runs a conditional push and then always
// deletes (unlists) the identity, whatever the push did. The delete outcome
// is reported in UnlistStatusCode and never changes the push fields.
func (c *Client) PushAndUnlistPackageIfNotExists(ctx context.Context, source feed.Source, pkg io.ReadSeeker) (PushAndUnlistResult, error) {
	pushResult, pushErr := c.PushPackageIfNotExists(ctx, source, pkg)
	result := PushAndUnlistResult{ConditionalPushResult: pushResult}

	id := pushResult.Identity
	if id.IsZero() {
		// Nothing identifies what to unlist
		return result, pushErr
	}

	code, err := c.DeletePackage(ctx, source, id)
	result.UnlistStatusCode = code
	if err != nil {
		err = fmt.Errorf("unlist %s: %w", id, err)
	} else {
		c.log.Debug("package unlisted",
			zap.String("source", source.Key()),
			zap.Stringer("package", id),
			zap.Int("status", code))
	}

	return result, errors.Join(pushErr, err)
}

// readIdentity reads the identity and rewinds the stream for the push
func (c *Client) readIdentity(pkg io.ReadSeeker) (feed.Identity, error) {
	id, err := c.reader.GetPackageIdentity(pkg)
	if err != nil {
		return feed.Identity{}, NewFeedError(ErrInvalidPackage, err.Error())
	}
	if id.ID == "" || id.Version == "" {
		return feed.Identity{}, NewFeedError(ErrInvalidPackage, "package has no id or version")
	}
	if _, err := pkg.Seek(0, io.SeekStart); err != nil {
		return feed.Identity{}, fmt.Errorf("failed to rewind package stream: %w", err)
	}
	return id, nil
}

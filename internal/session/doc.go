// Copyright (c) 2025 Minato Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session drives the lifecycle of one chat send operation.
//
// A turn moves through sending -> streaming -> one of finalized, aborted,
// or errored. The Controller appends the optimistic user/placeholder pair,
// opens the stream on a background goroutine, and folds frames through the
// reducer, checking cancellation before each frame so an Esc press takes
// effect at a frame boundary. State changes surface as Update snapshots on
// a channel the UI drains; the one-shot CLI path waits for the terminal
// update instead.
package session

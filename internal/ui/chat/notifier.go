// Copyright (c) 2025 Minato Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/ngandimoun/minato-tui/internal/reducer"
	"github.com/ngandimoun/minato-tui/internal/ui/components"
)

// toastNotifier surfaces reducer notifications as corner toasts. The
// ToastManager is mutex-guarded, so calls from the turn goroutine are
// safe; the next toast tick picks the new toast up for rendering.
type toastNotifier struct {
	toasts *components.ToastManager
}

func (n toastNotifier) Notify(kind reducer.NotifyKind, message string) {
	switch kind {
	case reducer.NotifyError:
		n.toasts.AddError(message)
	default:
		n.toasts.AddStatus(message)
	}
}

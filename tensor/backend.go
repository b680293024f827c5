// Copyright 2025 Meadow GP Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/meadow-ml/meadow/internal/tensor"
)

// Backend is the interface for device-specific tensor computation.
// Implementations: backend/cpu (dense CPU math), autodiff (a decorator
// adding gradient recording on top of any other backend).
type Backend = tensor.Backend

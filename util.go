// Copyright (c) 2022, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rlcore

// Epsilon is the small constant guarding divisions and square roots
// in normalization and related numerics.
const Epsilon = 1e-5

// Copyright (c) 2022, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rlcore provides the shared error types and numeric constants
// for the rlcore reinforcement-learning agent framework.
//
// The framework proper lives in the subpackages:
//
//	specs      typed shape / bounds descriptors for named tensor slots
//	normalize  input normalization layers (linear, exponential, instance)
//	model      the Model orchestrator: acting, observing, persistence
//	agent      serving wrapper connecting a Model to an external world
package rlcore

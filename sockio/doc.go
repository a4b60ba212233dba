// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package sockio provides non-blocking TCP sockets on raw descriptors
// and reactor computations that send and receive whole units over them.
package sockio

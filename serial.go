// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package reactor

import "code.hybscloud.com/atomix"

// Serial is a monotonically increasing identifier.
// Tasks draw from one process-wide counter; other packages keep their own.
type Serial = uint32

// SerialCounter hands out serials starting at 1.
type SerialCounter struct {
	n atomix.Uint32
}

// Next returns the next serial.
func (c *SerialCounter) Next() Serial {
	return c.n.Add(1)
}

// taskSerials is the global counter for task ids.
var taskSerials SerialCounter

/*
 * Copyright 2024, 2025 Hewlett Packard Enterprise Development LP
 * Other additional copyright holders may be indicated within.
 *
 * The entirety of this work is licensed under the Apache License,
 * Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.
 *
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package device

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Bar is a memory mapped PCI base address register region.
type Bar struct {
	path string
	data []byte
}

// MapBar maps the whole of a sysfs PCI resource file, e.g.
// /sys/bus/pci/devices/0000:03:00.0/resource0, for reading and writing.
func MapBar(path string) (*Bar, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}

	if fi.Size() == 0 {
		return nil, fmt.Errorf("bar %s has no size", path)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(fi.Size()), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}

	return &Bar{path: path, data: data}, nil
}

// Addr returns the virtual address of the start of the mapping.
func (b *Bar) Addr() uint64 {
	return uint64(uintptr(unsafe.Pointer(&b.data[0])))
}

func (b *Bar) Size() int { return len(b.data) }

func (b *Bar) Unmap() error {
	if b.data == nil {
		return nil
	}

	err := unix.Munmap(b.data)
	b.data = nil
	return err
}

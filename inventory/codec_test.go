// Copyright 2023 The InventoryDB Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package inventory

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSubFolderEntry_Roundtrip(t *testing.T) {
	for _, entry := range []subFolderEntry{
		{},
		{Name: "Clothing", Type: 5},
		{Name: "Trash", Type: 14},
		{Name: "négatif", Type: -1},
	} {
		got := decodeSubFolderEntry(entry.encode())
		require.Equal(t, entry, got)
	}
}

func TestSubFolderEntry_NameTruncation(t *testing.T) {
	long := strings.Repeat("x", 300)
	entry := subFolderEntry{Name: long, Type: 2}

	data := entry.encode()
	got := decodeSubFolderEntry(data)
	require.Equal(t, long[:subFolderNameMax], got.Name)
	require.Equal(t, int16(2), got.Type)
}

func TestSubFolderEntry_BadData(t *testing.T) {
	// unknown version tag
	require.Equal(t, subFolderEntry{}, decodeSubFolderEntry([]byte{99, 1, 'a', 0, 0}))
	// truncated value
	require.Equal(t, subFolderEntry{}, decodeSubFolderEntry([]byte{subFolderEntryVersion, 10, 'a'}))
	// empty and nil
	require.Equal(t, subFolderEntry{}, decodeSubFolderEntry(nil))
	require.Equal(t, subFolderEntry{}, decodeSubFolderEntry([]byte{}))
}

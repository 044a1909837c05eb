//go:build !linux

package discfs

import "os"

func adviseSequential(*os.File) {}

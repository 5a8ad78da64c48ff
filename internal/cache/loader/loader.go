// Package loader registers all cache drivers via side-effect imports.
package loader

import (
	_ "presencelog/internal/cache/memory"
	_ "presencelog/internal/cache/redis"
)

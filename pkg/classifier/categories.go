package classifier

// Category names. The order of Categories is the order of the report.
const (
	CategoryCPU          = "cpu"
	CategoryDiskIO       = "disk_io"
	CategoryFilesystem   = "filesystem"
	CategoryMemory       = "memory"
	CategoryNetwork      = "network"
	CategorySwap         = "swap"
	CategoryTasks        = "tasks"
	CategorySQL          = "sql"
	CategoryCache        = "cache"
	CategoryCheckpoint   = "checkpoint"
	CategoryConcurrency  = "concurrency"
	CategoryIO           = "io"
	CategoryState        = "state"
	CategoryTemp         = "temp"
	CategoryTransactions = "transactions"
	CategoryUser         = "user"
	CategoryWAL          = "wal"
)

// Categories lists every category in report order.
var Categories = []string{
	CategoryCPU, CategoryDiskIO, CategoryFilesystem, CategoryMemory, CategoryNetwork,
	CategorySwap, CategoryTasks, CategorySQL, CategoryCache, CategoryCheckpoint,
	CategoryConcurrency, CategoryIO, CategoryState, CategoryTemp, CategoryTransactions,
	CategoryUser, CategoryWAL,
}

// categoryPrefixes maps a base-name prefix to its category. Lookup uses the longest matching prefix.
var categoryPrefixes = map[string]string{
	"os.cpuUtilization":    CategoryCPU,
	"os.loadAverageMinute": CategoryCPU,
	"os.diskIO":            CategoryDiskIO,
	"os.fileSys":           CategoryFilesystem,
	"os.memory":            CategoryMemory,
	"os.network":           CategoryNetwork,
	"os.swap":              CategorySwap,
	"os.memory.swap":       CategorySwap,
	"os.tasks":             CategoryTasks,

	"db.SQL":          CategorySQL,
	"db.Cache":        CategoryCache,
	"db.Checkpoint":   CategoryCheckpoint,
	"db.Concurrency":  CategoryConcurrency,
	"db.IO":           CategoryIO,
	"db.state":        CategoryState,
	"db.Temp":         CategoryTemp,
	"db.Transactions": CategoryTransactions,
	"db.User":         CategoryUser,
	"db.WAL":          CategoryWAL,
}

// excluded lists base names dropped before classification: totals derivable from
// other metrics and counters that carry no workload signal.
var excluded = map[string]bool{
	"os.cpuUtilization.total": true,
	"os.cpuUtilization.idle":  true,
	"os.memory.total":         true,
	"os.swap.total":           true,
	"os.network.rx":           true,
	"os.network.tx":           true,
	"os.general.numVCPUs":     true,
	"os.fileSys.total":        true,
	"os.fileSys.maxFiles":     true,
	"db.state.idle":           true,
}

// CategoryOf returns the category of a base metric name, or "" when no prefix matches.
func CategoryOf(base string) string {
	best, category := 0, ""
	for prefix, name := range categoryPrefixes {
		if len(prefix) <= best || !hasPrefix(base, prefix) {
			continue
		}
		best, category = len(prefix), name
	}
	return category
}

// IsExcluded reports whether a base metric name is removed from classification.
func IsExcluded(base string) bool {
	return excluded[base]
}

// hasPrefix matches whole dotted segments so "os.memory" does not claim "os.memoryX".
func hasPrefix(name, prefix string) bool {
	if len(name) < len(prefix) || name[:len(prefix)] != prefix {
		return false
	}
	return len(name) == len(prefix) || name[len(prefix)] == '.'
}

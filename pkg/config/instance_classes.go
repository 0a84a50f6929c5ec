package config

import (
	"fmt"
	"strings"
)

// ServerlessClass is the instance class of an Aurora Serverless v2 member.
const ServerlessClass = "db.serverless"

// ScaleDirection labels a move between two instance classes
type ScaleDirection string

const (
	ScaleUp   ScaleDirection = "UP"
	ScaleDown ScaleDirection = "DOWN"
	ScaleNone ScaleDirection = "NONE"
)

// Family describes an Aurora instance class family
type Family struct {
	Name              string // e.g. "r6g"
	Generation        int    // e.g. 6
	Burstable         bool   // t-series classes run on CPU credits
	CurrentGeneration bool
}

// InstanceClass is a parsed instance class name
type InstanceClass struct {
	Name   string
	Family Family
	Size   string
	Rank   int // Position on the size ladder, larger is bigger
}

// FamilyRegistry holds the Aurora instance class families
var FamilyRegistry = map[string]Family{
	// Burstable
	"t3":  {Name: "t3", Generation: 3, Burstable: true, CurrentGeneration: true},
	"t4g": {Name: "t4g", Generation: 4, Burstable: true, CurrentGeneration: true},

	// Memory optimized
	"r4":  {Name: "r4", Generation: 4},
	"r5":  {Name: "r5", Generation: 5, CurrentGeneration: true},
	"r6g": {Name: "r6g", Generation: 6, CurrentGeneration: true},
	"r6i": {Name: "r6i", Generation: 6, CurrentGeneration: true},
	"r7g": {Name: "r7g", Generation: 7, CurrentGeneration: true},
	"r7i": {Name: "r7i", Generation: 7, CurrentGeneration: true},
	"r8g": {Name: "r8g", Generation: 8, CurrentGeneration: true},

	// Memory optimized, extended memory
	"x2g": {Name: "x2g", Generation: 2, CurrentGeneration: true},

	// Memory optimized with local NVMe for tiered cache
	"r6gd": {Name: "r6gd", Generation: 6, CurrentGeneration: true},
	"r6id": {Name: "r6id", Generation: 6, CurrentGeneration: true},
}

// sizeLadder orders instance sizes from smallest to largest
var sizeLadder = []string{
	"micro", "small", "medium", "large", "xlarge",
	"2xlarge", "4xlarge", "8xlarge", "12xlarge", "16xlarge", "24xlarge", "32xlarge", "48xlarge",
}

// ParseInstanceClass parses names like "db.r6g.2xlarge"
func ParseInstanceClass(name string) (InstanceClass, error) {
	if name == ServerlessClass {
		return InstanceClass{}, fmt.Errorf("%s has no fixed size", name)
	}

	parts := strings.Split(name, ".")
	if len(parts) != 3 || parts[0] != "db" {
		return InstanceClass{}, fmt.Errorf("invalid instance class format: %s", name)
	}

	family, ok := FamilyRegistry[parts[1]]
	if !ok {
		return InstanceClass{}, fmt.Errorf("instance class family %s not found", parts[1])
	}

	rank := -1
	for i, size := range sizeLadder {
		if size == parts[2] {
			rank = i
			break
		}
	}
	if rank < 0 {
		return InstanceClass{}, fmt.Errorf("unknown instance size %s", parts[2])
	}

	return InstanceClass{Name: name, Family: family, Size: parts[2], Rank: rank}, nil
}

// EC2InstanceType maps an instance class to the EC2 type that describes its hardware
func EC2InstanceType(class string) string {
	return strings.TrimPrefix(class, "db.")
}

// IsBurstable reports whether a class runs on CPU credits. Unknown classes are not burstable.
func IsBurstable(class string) bool {
	c, err := ParseInstanceClass(class)
	if err != nil {
		return false
	}
	return c.Family.Burstable
}

// Direction labels the move from one class to another by size, then by generation within a size
func Direction(from, to string) ScaleDirection {
	if from == to {
		return ScaleNone
	}
	a, errA := ParseInstanceClass(from)
	b, errB := ParseInstanceClass(to)
	if errA != nil || errB != nil {
		return ScaleNone
	}

	switch {
	case b.Rank > a.Rank:
		return ScaleUp
	case b.Rank < a.Rank:
		return ScaleDown
	case b.Family.Generation > a.Family.Generation:
		return ScaleUp
	case b.Family.Generation < a.Family.Generation:
		return ScaleDown
	default:
		return ScaleNone
	}
}

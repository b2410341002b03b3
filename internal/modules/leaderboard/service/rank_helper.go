package service

// LevelStatus is the level block attached to every wallet check.
type LevelStatus struct {
	CurrentLevel int
	NextLevel    int
	PointsNeeded int64
}

// MaxLevel is the highest reachable level; the table carries one extra
// threshold that only serves as the "next" ceiling after it.
const MaxLevel = 10

// levelThresholds[L-1] is the minimum points for level L.
var levelThresholds = [...]int64{
	0,      // L1
	1000,   // L2
	3000,   // L3
	6000,   // L4
	10000,  // L5
	15000,  // L6
	25000,  // L7
	40000,  // L8
	60000,  // L9
	90000,  // L10
	150000, // ceiling after L10
}

// LevelThreshold returns the minimum points for level. Levels past the table
// repeat the final ceiling.
func LevelThreshold(level int) int64 {
	if level < 1 {
		return 0
	}
	if level > len(levelThresholds) {
		return levelThresholds[len(levelThresholds)-1]
	}
	return levelThresholds[level-1]
}

// LevelFor returns the largest level whose threshold points reach.
func LevelFor(points int64) int {
	level := 1
	for l := MaxLevel; l >= 1; l-- {
		if points >= levelThresholds[l-1] {
			level = l
			break
		}
	}
	return level
}

// GetLevelStatus calculates level, next level and the points still missing.
func GetLevelStatus(points int64) LevelStatus {
	if points < 0 {
		points = 0
	}
	level := LevelFor(points)
	next := level + 1

	needed := LevelThreshold(next) - points
	if needed < 0 {
		needed = 0
	}

	return LevelStatus{
		CurrentLevel: level,
		NextLevel:    next,
		PointsNeeded: needed,
	}
}

// Point distribution buckets, highest first. Labels match the public stats page.
type distributionBucket struct {
	Label string
	Min   int64
}

var distributionBuckets = []distributionBucket{
	{"10000+", 10000},
	{"9000-9999", 9000},
	{"8000-8999", 8000},
	{"7000-7999", 7000},
	{"6000-6999", 6000},
	{"5000-5999", 5000},
	{"4000-4999", 4000},
	{"3000-3999", 3000},
	{"below-3000", 0},
}

func newDistribution() map[string]int64 {
	d := make(map[string]int64, len(distributionBuckets))
	for _, b := range distributionBuckets {
		d[b.Label] = 0
	}
	return d
}

func bucketLabel(points int64) string {
	for _, b := range distributionBuckets {
		if points >= b.Min {
			return b.Label
		}
	}
	return distributionBuckets[len(distributionBuckets)-1].Label
}

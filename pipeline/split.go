package pipeline

import (
	"fmt"
	"math"
	"math/rand"
)

// SplitDataset 按固定种子打乱后切分训练集与测试集
//
// 测试集大小为 ceil(n*testRatio)，取排列的前段；同样的种子和数据总是得到同样的切分。
func SplitDataset(ds *Dataset, testRatio float64, seed int64) (train, test *Dataset, err error) {
	if testRatio <= 0 || testRatio >= 1 {
		return nil, nil, fmt.Errorf("test ratio must be in (0, 1), got %v", testRatio)
	}
	n := ds.Len()
	nTest := int(math.Ceil(float64(n) * testRatio))
	nTrain := n - nTest
	if nTest < 1 || nTrain < 1 {
		return nil, nil, fmt.Errorf("%w: %d rows cannot be split with ratio %v", ErrInsufficientData, n, testRatio)
	}

	perm := rand.New(rand.NewSource(seed)).Perm(n)
	return ds.subset(perm[nTest:]), ds.subset(perm[:nTest]), nil
}

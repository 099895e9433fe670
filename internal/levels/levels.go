package levels

import (
	"sort"

	"github.com/skalibog/fxbot/internal/config"
	"github.com/skalibog/fxbot/pkg/models"
)

// Levels набор найденных уровней, отсортированных по убыванию силы.
// Набор пересчитывается целиком и замещает предыдущий, слияния нет.
type Levels struct {
	Support    []models.Level
	Resistance []models.Level
}

// Locator находит горизонтальные уровни по локальным экстремумам цены
type Locator struct {
	cfg config.LevelsConfig
}

// NewLocator создает новый локатор уровней
func NewLocator(cfg config.LevelsConfig) *Locator {
	return &Locator{
		cfg: cfg,
	}
}

type extremum struct {
	index int
	price float64
}

// Detect находит локальные экстремумы в скользящем окне и группирует
// близкие по цене точки в уровни. Свеча считается локальным максимумом,
// если ее high строго выше high всех свечей в половине окна с обеих сторон;
// для минимумов симметрично.
func (l *Locator) Detect(candles []*models.Candle) *Levels {
	half := l.cfg.Window / 2
	if half < 1 {
		half = 1
	}

	var maxima, minima []extremum
	for i := half; i < len(candles)-half; i++ {
		isMax, isMin := true, true
		for j := i - half; j <= i+half; j++ {
			if j == i {
				continue
			}
			if candles[j].High >= candles[i].High {
				isMax = false
			}
			if candles[j].Low <= candles[i].Low {
				isMin = false
			}
			if !isMax && !isMin {
				break
			}
		}
		if isMax {
			maxima = append(maxima, extremum{index: i, price: candles[i].High})
		}
		if isMin {
			minima = append(minima, extremum{index: i, price: candles[i].Low})
		}
	}

	return &Levels{
		Support:    l.group(minima, models.Support),
		Resistance: l.group(maxima, models.Resistance),
	}
}

// group объединяет соседние по цене экстремумы в уровни.
// Допуск разбивает отсортированное множество на непересекающиеся группы;
// цена уровня есть среднее группы, сила равна числу ее членов.
func (l *Locator) group(points []extremum, kind models.LevelKind) []models.Level {
	if len(points) == 0 {
		return nil
	}

	sorted := make([]extremum, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].price < sorted[j].price })

	var levels []models.Level
	sum := sorted[0].price
	count := 1
	lastSeen := sorted[0].index

	flush := func() {
		levels = append(levels, models.Level{
			Price:    sum / float64(count),
			Kind:     kind,
			Strength: count,
			LastSeen: lastSeen,
		})
	}

	for i := 1; i < len(sorted); i++ {
		if sorted[i].price-sorted[i-1].price <= l.cfg.Tolerance {
			sum += sorted[i].price
			count++
			if sorted[i].index > lastSeen {
				lastSeen = sorted[i].index
			}
			continue
		}
		flush()
		sum = sorted[i].price
		count = 1
		lastSeen = sorted[i].index
	}
	flush()

	// Ранжируем по силе, при равенстве побеждает более свежий уровень
	sort.Slice(levels, func(i, j int) bool {
		if levels[i].Strength != levels[j].Strength {
			return levels[i].Strength > levels[j].Strength
		}
		return levels[i].LastSeen > levels[j].LastSeen
	})

	return levels
}

// NearestSupportBelow возвращает самый сильный уровень поддержки ниже цены
func (ls *Levels) NearestSupportBelow(price float64) (models.Level, bool) {
	for _, level := range ls.Support {
		if level.Price < price {
			return level, true
		}
	}
	return models.Level{}, false
}

// NearestResistanceAbove возвращает самый сильный уровень сопротивления выше цены
func (ls *Levels) NearestResistanceAbove(price float64) (models.Level, bool) {
	for _, level := range ls.Resistance {
		if level.Price > price {
			return level, true
		}
	}
	return models.Level{}, false
}

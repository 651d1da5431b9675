// Package astro derives zodiac signs and daily fortunes. The derivations are
// deliberately simple deterministic mocks, not ephemeris computations: the
// same birth data or the same sign-and-day pair always produces the same
// output.
package astro

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Sign is one entry of the zodiac table.
type Sign struct {
	Name      string `json:"name"` // display name, e.g. "白羊座"
	English   string `json:"en"`
	DateRange string `json:"date"`
	Icon      string `json:"icon"`
}

// ZodiacSigns is the fixed zodiac table, in traditional order starting at
// Aries.
var ZodiacSigns = []Sign{
	{Name: "白羊座", English: "Aries", DateRange: "3.21-4.19", Icon: "♈"},
	{Name: "金牛座", English: "Taurus", DateRange: "4.20-5.20", Icon: "♉"},
	{Name: "双子座", English: "Gemini", DateRange: "5.21-6.21", Icon: "♊"},
	{Name: "巨蟹座", English: "Cancer", DateRange: "6.22-7.22", Icon: "♋"},
	{Name: "狮子座", English: "Leo", DateRange: "7.23-8.22", Icon: "♌"},
	{Name: "处女座", English: "Virgo", DateRange: "8.23-9.22", Icon: "♍"},
	{Name: "天秤座", English: "Libra", DateRange: "9.23-10.23", Icon: "♎"},
	{Name: "天蝎座", English: "Scorpio", DateRange: "10.24-11.22", Icon: "♏"},
	{Name: "射手座", English: "Sagittarius", DateRange: "11.23-12.21", Icon: "♐"},
	{Name: "摩羯座", English: "Capricorn", DateRange: "12.22-1.19", Icon: "♑"},
	{Name: "水瓶座", English: "Aquarius", DateRange: "1.20-2.18", Icon: "♒"},
	{Name: "双鱼座", English: "Pisces", DateRange: "2.19-3.20", Icon: "♓"},
}

// Signs holds the three derived sign names for a birth chart.
type Signs struct {
	Sun       string `json:"sunSign"`
	Moon      string `json:"moonSign"`
	Ascendant string `json:"ascendantSign"`
}

// CalculateSigns derives sun, moon and ascendant signs from a birth date
// ("2006-01-02") and time ("15:04"). Moon and ascendant are fixed offsets
// from the sun sign index.
func CalculateSigns(birthDate, birthTime string) (Signs, error) {
	date, err := time.Parse("2006-01-02", birthDate)
	if err != nil {
		return Signs{}, fmt.Errorf("parsing birth date %q: %w", birthDate, err)
	}
	hourStr, _, _ := strings.Cut(birthTime, ":")
	hour, err := strconv.Atoi(hourStr)
	if err != nil {
		return Signs{}, fmt.Errorf("parsing birth time %q: %w", birthTime, err)
	}

	month := int(date.Month())
	day := date.Day()

	adjust := -1
	if day > 20 {
		adjust = 0
	}
	sunIdx := (month - 1 + adjust + 12) % 12

	return Signs{
		Sun:       ZodiacSigns[sunIdx].Name,
		Moon:      ZodiacSigns[(sunIdx+4)%12].Name,
		Ascendant: ZodiacSigns[(sunIdx+hour%12)%12].Name,
	}, nil
}

// Fortune is one day's fortune for one sun sign. Scores range 60-99.
type Fortune struct {
	Summary        int    `json:"summary"`
	Love           int    `json:"love"`
	Career         int    `json:"career"`
	Wealth         int    `json:"wealth"`
	Health         int    `json:"health"`
	Academic       int    `json:"academic"`
	LuckyColor     string `json:"luckyColor"`
	LuckyNumber    string `json:"luckyNumber"`
	LuckyDirection string `json:"luckyDirection"`
	Advice         string `json:"advice"`
	Description    string `json:"description"`
}

var (
	luckyColors     = []string{"紫色", "金黄色", "星空蓝", "翡翠绿"}
	luckyDirections = []string{"正东", "西北", "东南", "正南"}
)

// seedHash is a 32-bit string hash: for each character,
// h = code + (h<<5) - h, truncated to 32 bits.
func seedHash(s string) int32 {
	var h int32
	for _, r := range s {
		h = int32(r) + (h << 5) - h
	}
	return h
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func categoryScore(h int64, rng int64) int {
	return int(abs64(h%rng)) + 60
}

// DailyFortune returns the fortune for a sun sign on a given day. It is a
// pure function of the sign name and calendar date.
func DailyFortune(sunSign string, day time.Time) Fortune {
	seed := sunSign + day.Format("Mon Jan 02 2006")
	h := int64(seedHash(seed))

	return Fortune{
		Summary:        categoryScore(h, 30),
		Love:           categoryScore(h*2, 40),
		Career:         categoryScore(h*3, 40),
		Wealth:         categoryScore(h*4, 40),
		Health:         categoryScore(h*5, 40),
		Academic:       categoryScore(h*6, 40),
		LuckyColor:     luckyColors[abs64(h%4)],
		LuckyNumber:    strconv.FormatInt(abs64(h%9)+1, 10),
		LuckyDirection: luckyDirections[abs64(h%4)],
		Advice:         "今日能量充沛，适合开启新的计划。在处理文书工作时需格外仔细，避免疏漏。",
		Description: fmt.Sprintf("✨ 今天%s的朋友们整体运势稳步上升，宇宙正赋予你前所未有的专注力。\n\n"+
			"🤝 在人际交往中，你的魅力指数极高，容易得到贵人相助，适合进行深度的情感沟通或商务洽谈。\n\n"+
			"💼 事业上可能会迎来一个小小的挑战，但这正是你展现专业能力的契机。保持冷静，你一定能找到完美的解决方案。", sunSign),
	}
}

// TransitSpan selects the trend window for a transit outlook.
type TransitSpan string

const (
	SpanWeek  TransitSpan = "week"
	SpanMonth TransitSpan = "month"
	SpanYear  TransitSpan = "year"
)

// TransitEvent is one notable planetary transit.
type TransitEvent struct {
	Title       string `json:"title"`
	Intensity   string `json:"intensity"` // high, medium, low
	Description string `json:"description"`
}

// TrendPoint is one sample of the outlook trend line.
type TrendPoint struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// TransitOutlook holds the transit events and trend series for one span.
type TransitOutlook struct {
	Events []TransitEvent `json:"events"`
	Trend  []TrendPoint   `json:"trend"`
}

var transitEvents = []TransitEvent{
	{Title: "金星进入财帛宫", Intensity: "high", Description: "这对你的收入是个利好，可能会有意外的财务惊喜。"},
	{Title: "水星逆行前期", Intensity: "medium", Description: "注意沟通细节，合同签署需谨慎检查。"},
	{Title: "水星顺行开启", Intensity: "high", Description: "思维清晰度大幅提升，是推进创意项目的最佳时机。"},
}

// Transits returns the outlook for a sun sign over a span. The trend series
// is hash-seeded rather than random so repeated requests agree.
func Transits(sunSign string, span TransitSpan) TransitOutlook {
	var count int
	switch span {
	case SpanWeek:
		count = 7
	case SpanMonth:
		count = 10
	default:
		count = 12
	}

	trend := make([]TrendPoint, count)
	for i := range trend {
		var label string
		switch span {
		case SpanWeek:
			label = fmt.Sprintf("D%d", i+1)
		case SpanMonth:
			label = fmt.Sprintf("%d日", i*3+1)
		default:
			label = fmt.Sprintf("%d月", i+1)
		}
		h := int64(seedHash(fmt.Sprintf("%s:%s:%d", sunSign, span, i)))
		trend[i] = TrendPoint{Label: label, Value: 60 + float64(abs64(h%35))}
	}

	return TransitOutlook{Events: transitEvents, Trend: trend}
}

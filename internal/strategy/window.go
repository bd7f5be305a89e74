package strategy

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// dayClock 是不带日期的本地时刻（HH:MM 粒度）。
type dayClock struct {
	hour   int
	minute int
}

func parseClock(value string) (dayClock, error) {
	parts := strings.SplitN(strings.TrimSpace(value), ":", 2)
	if len(parts) != 2 {
		return dayClock{}, fmt.Errorf("时间格式必须是 HH:MM: %q", value)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return dayClock{}, fmt.Errorf("小时无效: %q", value)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return dayClock{}, fmt.Errorf("分钟无效: %q", value)
	}
	return dayClock{hour: hour, minute: minute}, nil
}

func (c dayClock) minutes() int { return c.hour*60 + c.minute }

func (c dayClock) offset() time.Duration {
	return time.Duration(c.hour)*time.Hour + time.Duration(c.minute)*time.Minute
}

// sinceMidnight 取本地时刻相对当日零点的偏移，秒与亚秒都参与窗口比较：
// 09:30:30 的 K 线对 09:30 的窗口边界来说已经出界。
func sinceMidnight(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond())
}

// timeWindow 是闭区间 [start, end]。
type timeWindow struct {
	start dayClock
	end   dayClock
}

func parseWindow(start, end string) (timeWindow, error) {
	s, err := parseClock(start)
	if err != nil {
		return timeWindow{}, err
	}
	e, err := parseClock(end)
	if err != nil {
		return timeWindow{}, err
	}
	if e.minutes() < s.minutes() {
		return timeWindow{}, fmt.Errorf("窗口结束早于开始: %s~%s", start, end)
	}
	return timeWindow{start: s, end: e}, nil
}

func (w timeWindow) contains(t time.Time) bool {
	d := sinceMidnight(t)
	return d >= w.start.offset() && d <= w.end.offset()
}

// atOrAfter 判断本地时刻是否到达 c（含）。
func (c dayClock) atOrAfter(t time.Time) bool {
	return sinceMidnight(t) >= c.offset()
}

package crawlers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/RecoveryAshes/zonehwatch/internal/models"
)

// 归档表格的列序号
const (
	colDate = iota
	colNotifier
	colHomepage
	colMass
	colRedeface
	colCountry
	colSpecial
	colURL
	colOS
	colMirror
	recordColumns
)

// invalidCookieMarker 会话失效时站点返回的登录前页面特征
const invalidCookieMarker = "slowAES"

// PageClass 页面分类结果
type PageClass int

const (
	PageOK          PageClass = iota // 正常的归档页
	PageChallenge                    // 验证码页
	PageInvalidated                  // 会话失效,站点返回登录前页面
	PageFatal                        // 无法识别的页面
)

func (c PageClass) String() string {
	switch c {
	case PageOK:
		return "ok"
	case PageChallenge:
		return "challenge"
	case PageInvalidated:
		return "invalidated"
	case PageFatal:
		return "fatal"
	}
	return fmt.Sprintf("PageClass(%d)", int(c))
}

// PageResult 归档页解析结果
type PageResult struct {
	Class    PageClass
	Records  []models.Record
	NextPage int   // 0 表示没有下一页
	Err      error // Class 为 PageFatal 时的解析错误
}

// MirrorResult 镜像页解析结果
type MirrorResult struct {
	Class  PageClass
	Detail models.MirrorDetail
	Err    error
}

// RecordParser 归档页与镜像页解析器
// 无状态,可在多个goroutine间共享
type RecordParser struct{}

// NewRecordParser 创建解析器
func NewRecordParser() *RecordParser {
	return &RecordParser{}
}

// Classify 解析归档页并给出分类
// 先按正常页面解析,失败后再判断是验证码页还是会话失效
func (p *RecordParser) Classify(html string) PageResult {
	records, next, err := p.ParsePage(html)
	if err == nil {
		return PageResult{Class: PageOK, Records: records, NextPage: next}
	}
	class, err := p.classifyFailure(html, err)
	return PageResult{Class: class, Err: err}
}

// ClassifyMirror 解析镜像页并给出分类
func (p *RecordParser) ClassifyMirror(html string) MirrorResult {
	detail, err := p.ParseMirrorDetail(html)
	if err == nil {
		return MirrorResult{Class: PageOK, Detail: detail}
	}
	class, err := p.classifyFailure(html, err)
	return MirrorResult{Class: class, Err: err}
}

func (p *RecordParser) classifyFailure(html string, parseErr error) (PageClass, error) {
	if p.IsCaptcha(html) {
		return PageChallenge, nil
	}
	if p.IsCookieInvalid(html) {
		return PageInvalidated, nil
	}
	return PageFatal, parseErr
}

// IsCaptcha 页面是否为验证码页
func (p *RecordParser) IsCaptcha(html string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false
	}
	return doc.Find("img#cryptogram").Length() > 0
}

// IsCookieInvalid 页面是否为会话失效后的登录前页面
func (p *RecordParser) IsCookieInvalid(html string) bool {
	return strings.Contains(html, invalidCookieMarker)
}

// ParsePage 解析归档页,返回记录列表和下一页页码
// 表格首行为表头,末两行为分页与页脚
func (p *RecordParser) ParsePage(html string) ([]models.Record, int, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, 0, &models.ParseError{Stage: "document", Reason: err.Error()}
	}

	table := doc.Find("table#ldeface").First()
	if table.Length() == 0 {
		return nil, 0, &models.ParseError{Stage: "table", Reason: "未找到归档表格"}
	}

	rows := table.Find("tr")
	if rows.Length() < 3 {
		return nil, 0, &models.ParseError{
			Stage:  "table",
			Reason: fmt.Sprintf("表格行数不足: %d", rows.Length()),
		}
	}

	records := make([]models.Record, 0, rows.Length()-3)
	for i := 1; i < rows.Length()-2; i++ {
		rec, err := parseRecordRow(rows.Eq(i))
		if err != nil {
			return nil, 0, err
		}
		records = append(records, rec)
	}

	next, err := parseNextPage(rows.Eq(rows.Length() - 2))
	if err != nil {
		return nil, 0, err
	}
	return records, next, nil
}

func parseRecordRow(row *goquery.Selection) (models.Record, error) {
	cells := row.Find("td")
	if cells.Length() < recordColumns {
		return models.Record{}, &models.ParseError{
			Stage:  "row",
			Reason: fmt.Sprintf("单元格数量不足: %d", cells.Length()),
		}
	}

	cell := func(i int) *goquery.Selection { return cells.Eq(i) }
	text := func(i int) string { return strings.TrimSpace(cell(i).Text()) }

	mirrorHref, _ := cell(colMirror).Find("a").First().Attr("href")
	mirrorID, err := lastPathInt(mirrorHref)
	if err != nil {
		return models.Record{}, &models.ParseError{
			Stage:  "row",
			Reason: fmt.Sprintf("镜像链接无效 %q: %v", mirrorHref, err),
		}
	}

	country, _ := cell(colCountry).Find("img").First().Attr("title")

	return models.Record{
		Date:               text(colDate),
		Notifier:           text(colNotifier),
		HomepageDefacement: text(colHomepage) != "",
		MassDefacement:     linkParam(cell(colMass)),
		Redefacement:       linkParam(cell(colRedeface)),
		Country:            country,
		Special:            cell(colSpecial).Find("img").Length() > 0,
		DefacedURL:         text(colURL),
		OS:                 text(colOS),
		MirrorID:           mirrorID,
	}, nil
}

// linkParam 取单元格中链接最后一个 "=" 之后的部分,无链接时为空
func linkParam(cell *goquery.Selection) string {
	href, ok := cell.Find("a").First().Attr("href")
	if !ok {
		return ""
	}
	if i := strings.LastIndex(href, "="); i >= 0 {
		return href[i+1:]
	}
	return href
}

func lastPathInt(href string) (int, error) {
	i := strings.LastIndex(href, "/")
	if i < 0 {
		return 0, fmt.Errorf("缺少路径分隔符")
	}
	return strconv.Atoi(strings.TrimSpace(href[i+1:]))
}

// parseNextPage 当前页码用 strong 标出,紧随其后的链接即下一页
func parseNextPage(row *goquery.Selection) (int, error) {
	current := row.Find("td").First().Find("strong").First()
	if current.Length() == 0 {
		return 0, nil
	}
	link := current.NextAllFiltered("a").First()
	if link.Length() == 0 {
		return 0, nil
	}
	page, err := strconv.Atoi(strings.TrimSpace(link.Text()))
	if err != nil {
		return 0, &models.ParseError{
			Stage:  "pagination",
			Reason: fmt.Sprintf("下一页页码无效: %q", link.Text()),
		}
	}
	return page, nil
}

// ParseMirrorDetail 解析镜像详情页
func (p *RecordParser) ParseMirrorDetail(html string) (models.MirrorDetail, error) {
	var detail models.MirrorDetail

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return detail, &models.ParseError{Stage: "document", Reason: err.Error()}
	}

	blocks := doc.Find("li.deface0")
	if blocks.Length() < 3 {
		return detail, &models.ParseError{
			Stage:  "mirror",
			Reason: fmt.Sprintf("详情块数量不足: %d", blocks.Length()),
		}
	}

	dateParts := strings.SplitN(strings.TrimSpace(blocks.Eq(0).Text()), " ", 4)
	detail.Date = strings.TrimSpace(dateParts[len(dateParts)-1])

	target := blocks.Eq(1)
	notifier := target.Find("li.defacef").First()
	fullURL := target.Find("li.defaces").First()
	origin := target.Find("li.defacet").First()
	if notifier.Length() == 0 || fullURL.Length() == 0 || origin.Length() == 0 {
		return detail, &models.ParseError{Stage: "mirror", Reason: "缺少目标信息字段"}
	}
	detail.Notifier = lastField(notifier.Text())
	detail.DefacedURL = lastField(fullURL.Text())
	detail.IP = lastField(origin.Text())
	detail.Country, _ = origin.Find("img").First().Attr("title")

	system := blocks.Eq(2)
	os := system.Find("li.defacef").First()
	server := system.Find("li.defaces").First()
	if os.Length() == 0 || server.Length() == 0 {
		return detail, &models.ParseError{Stage: "mirror", Reason: "缺少系统信息字段"}
	}
	detail.OS = lastField(os.Text())
	detail.Server = lastField(server.Text())

	return detail, nil
}

func lastField(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

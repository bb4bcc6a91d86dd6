package config

// DefaultYAML is written by `liffsurvey config init` and backs Default().
const DefaultYAML = `liff:
  id: your-liff-id-here
  url: ""

upstream:
  # Google Apps Script web app deployment ending in /exec.
  url: ""
  spreadsheet_id: ""

api:
  # Forwarding proxy base URL; leave empty to post to upstream.url directly.
  base_url: ""
  timeout_seconds: 15

proxy:
  port: 3000
  allowed_origins: []
  upstream_timeout_seconds: 30

app:
  name: 麵包購買習慣調查
  version: 1.0.0
  debug: false
  log_level: info
  time_zone: Asia/Taipei

survey:
  title: "🍞 麵包購買習慣調查"
  description: |
    感謝您參與本次調查，您的意見對我們非常重要！
  sections:
    - id: basic
      title: "📋 Part 1：基本背景"
      required: true
    - id: purchase
      title: "🛒 Part 2：購買習慣調查"
      required: true
    - id: preference
      title: "🎯 Part 3：選擇考量"
      required: true
    - id: feedback
      title: "💭 Part 4：意見與建議"
      required: false
  fields:
    - name: phone_number
      label: 手機號碼
      kind: tel
      section: basic
      placeholder: "0912345678"
    - name: age
      label: 年齡
      kind: radio
      section: basic
      options: [18歲以下, 18-25歲, 26-35歲, 36-45歲, 46-55歲, 56歲以上]
    - name: gender
      label: 性別
      kind: radio
      section: basic
      options: [男, 女, 其他]
    - name: location
      label: 居住地區
      kind: select
      section: basic
      options: [北部, 中部, 南部, 東部, 離島]
    - name: purchase_frequency
      label: 購買麵包的頻率
      kind: radio
      section: purchase
      options: [每天, 每週2-3次, 每週1次, 每月2-3次, 很少購買]
    - name: purchase_time
      label: 通常購買的時段
      kind: radio
      section: purchase
      options: [早上, 中午, 下午, 晚上]
    - name: meal_type
      label: 麵包主要作為哪一餐
      kind: radio
      section: purchase
      options: [早餐, 午餐, 下午茶, 晚餐, 宵夜]
    - name: bread_types
      label: 喜歡的麵包種類
      kind: checkbox
      section: preference
      options: [吐司, 可頌, 菠蘿麵包, 歐式麵包, 甜麵包, 鹹麵包]
    - name: purchase_factors
      label: 選購時的考量因素
      kind: checkbox
      section: preference
      options: [價格, 口味, 新鮮度, 品牌, 健康成分, 便利性]
    - name: budget
      label: 每次購買的預算
      kind: radio
      section: preference
      options: [50元以下, 51-100元, 101-200元, 200元以上]
    - name: suggestions
      label: 其他意見與建議
      kind: textarea
      section: feedback

validation:
  required_fields:
    - phone_number
    - age
    - gender
    - location
    - purchase_frequency
    - purchase_time
    - meal_type
  max_text_length: 1000
  phone_field: phone_number
  phone_pattern: ^09\d{8}$

styles:
  primary_color: "#daa520"
  secondary_color: "#cd853f"
  success_color: "#27ae60"
  error_color: "#e74c3c"
`

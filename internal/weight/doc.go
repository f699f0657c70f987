// Package weight implements endpoint weight scoring. The default scorer
// samples simulated cpu, memory and disk utilization and maps the combined
// headroom to a 0-100 score; the Scorer interface lets tests inject
// deterministic weight sequences.
package weight
